package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/ids"
	"github.com/Djtony707/TITAN/internal/store"
)

var (
	jobInterval string
	jobCron     string
	jobMode     string
	jobScopes   string
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage scheduled jobs",
}

var jobAddCmd = &cobra.Command{
	Use:   "add <name> <goal-template>",
	Short: "Create a scheduled job (--interval or --cron, mutually exclusive)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (jobInterval == "") == (jobCron == "") {
			return apperr.Validation("job_schedule_required", fmt.Errorf("exactly one of --interval or --cron is required"))
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := bootstrap(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		kind := store.ScheduleInterval
		value := jobInterval
		if jobCron != "" {
			kind = store.ScheduleCron
			value = jobCron
		}

		var scopes []string
		if jobScopes != "" {
			scopes = strings.Split(jobScopes, ",")
		}

		job := store.Job{
			ID:            "job-" + ids.New(),
			Name:          args[0],
			ScheduleKind:  kind,
			ScheduleValue: value,
			GoalTemplate:  args[1],
			Mode:          jobMode,
			AllowedScopes: scopes,
			Enabled:       true,
		}
		if err := rt.st.CreateJob(cmd.Context(), job); err != nil {
			return err
		}
		fmt.Fprintln(cmdOut, job.ID)
		return nil
	},
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := bootstrap(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		jobs, err := rt.st.ListJobs(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(jobs)
	},
}

var jobShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a job and its recent runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := bootstrap(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		job, err := rt.st.GetJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		runs, err := rt.st.ListJobRuns(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"job": job, "runs": runs})
	},
}

var jobRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := bootstrap(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		return rt.st.RemoveJob(cmd.Context(), args[0])
	},
}

var jobPauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Disable a job so it no longer fires",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := bootstrap(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		return rt.scheduler.Pause(cmd.Context(), args[0])
	},
}

var jobResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Re-enable a paused job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := bootstrap(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		return rt.scheduler.Resume(cmd.Context(), args[0])
	},
}

var jobRunNowCmd = &cobra.Command{
	Use:   "run-now <id>",
	Short: "Fire a job immediately, outside its schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := bootstrap(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		goalID, err := rt.scheduler.RunNow(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmdOut, goalID)
		return nil
	},
}

func init() {
	jobAddCmd.Flags().StringVar(&jobInterval, "interval", "", "Go duration string, e.g. 1h30m")
	jobAddCmd.Flags().StringVar(&jobCron, "cron", "", "5-field cron expression")
	jobAddCmd.Flags().StringVar(&jobMode, "mode", "", "autonomy mode override for goals this job spawns")
	jobAddCmd.Flags().StringVar(&jobScopes, "scopes", "", "comma-separated scopes pre-approved for this job's goals")

	jobCmd.AddCommand(jobAddCmd, jobListCmd, jobShowCmd, jobRemoveCmd, jobPauseCmd, jobResumeCmd, jobRunNowCmd)
}
