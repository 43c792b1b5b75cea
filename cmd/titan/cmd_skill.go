package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/ids"
	"github.com/Djtony707/TITAN/internal/policy"
	"github.com/Djtony707/TITAN/internal/store"
)

var (
	skillApprovalTTL time.Duration
	skillArgsJSON    string
)

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Search, install, and run skill bundles",
}

var skillInstallCmd = &cobra.Command{
	Use:   "install <ref>",
	Short: "Install a skill bundle from a local path, git ref, or HTTP index (approval-gated)",
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

		sk, err := rt.installer.Install(cmd.Context(), args[0], skillApprovalTTL)
		if err != nil {
			return err
		}
		return printJSON(sk)
	},
}

var skillListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed skills",
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

		sks, err := rt.st.ListInstalledSkills(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(sks)
	},
}

var skillInspectCmd = &cobra.Command{
	Use:   "inspect <slug>",
	Short: "Show an installed skill's manifest details",
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

		sk, err := rt.st.GetInstalledSkill(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(sk)
	},
}

var skillRemoveCmd = &cobra.Command{
	Use:   "remove <slug>",
	Short: "Remove an installed skill",
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

		return rt.st.RemoveInstalledSkill(cmd.Context(), args[0])
	},
}

var skillRunCmd = &cobra.Command{
	Use:   "run <slug>",
	Short: "Execute an installed skill directly, outside any goal",
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

		var skillArgs map[string]any
		if skillArgsJSON != "" {
			if err := json.Unmarshal([]byte(skillArgsJSON), &skillArgs); err != nil {
				return apperr.Validation("malformed_skill_args", err)
			}
		}

		goalID := "cli-" + ids.New()
		if err := rt.st.CreateGoal(cmd.Context(), store.Goal{
			ID:          goalID,
			Description: "adhoc skill invocation: " + args[0],
			Origin:      "cli",
			SubmittedAt: time.Now().UTC(),
			State:       store.GoalRunning,
		}); err != nil {
			return err
		}

		out, err := rt.skillrt.Execute(cmd.Context(), goalID, "adhoc", args[0], skillArgs,
			policy.AutonomyMode(cfg.Autonomy.Mode), policy.RiskMode(cfg.Autonomy.RiskMode))

		finalState := store.GoalDone
		if err != nil {
			finalState = store.GoalFailed
		}
		_ = rt.st.SetGoalState(cmd.Context(), goalID, finalState)

		if err != nil {
			return err
		}
		fmt.Fprintln(cmdOut, out)
		return nil
	},
}

var skillLockfileCmd = &cobra.Command{
	Use:   "lockfile",
	Short: "Print the skill lockfile (slug -> version/source/hash)",
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

		entries, err := rt.st.Lockfile(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(entries)
	},
}

// skillSearchCmd, skillUpdateCmd, skillDoctorCmd, and skillValidateCmd name
// surfaces spec §6 lists (skill search|...|update|doctor|validate) that
// have no backing implementation yet: there is no skill index to search or
// update against (Install resolves a ref directly), and sandbox/signature
// diagnostics beyond Install's own checks aren't built. Each reports
// apperr.NotImplemented rather than silently doing nothing.
var skillSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search configured skill sources (not implemented: no skill index is wired)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return apperr.NotImplemented("skill_search")
	},
}

var skillUpdateCmd = &cobra.Command{
	Use:   "update <slug>",
	Short: "Update an installed skill to its source's latest version (not implemented: re-run install with a new ref)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return apperr.NotImplemented("skill_update")
	},
}

var skillDoctorCmd = &cobra.Command{
	Use:   "doctor <slug>",
	Short: "Diagnose an installed skill (not implemented beyond install-time checks)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return apperr.NotImplemented("skill_doctor")
	},
}

var skillValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Validate a skill bundle manifest without installing it (not implemented: install performs this inline)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return apperr.NotImplemented("skill_validate")
	},
}

func init() {
	skillInstallCmd.Flags().DurationVar(&skillApprovalTTL, "approval-ttl", 5*time.Minute, "TTL for the install's gating approval")
	skillRunCmd.Flags().StringVar(&skillArgsJSON, "args", "", "JSON object of skill arguments")

	skillCmd.AddCommand(skillSearchCmd, skillInstallCmd, skillListCmd, skillInspectCmd,
		skillUpdateCmd, skillRemoveCmd, skillRunCmd, skillDoctorCmd, skillValidateCmd, skillLockfileCmd)
}
