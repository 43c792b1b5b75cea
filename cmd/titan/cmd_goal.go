package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Djtony707/TITAN/internal/gateway"
)

var (
	goalDedupeKey string
)

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Submit, inspect, and cancel goals",
}

var goalSubmitCmd = &cobra.Command{
	Use:   "submit <text>",
	Short: "Submit a new goal",
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

		res, err := rt.gateway.Dispatch(cmd.Context(), gateway.Event{
			Origin: gateway.OriginCLI,
			Kind:   gateway.PayloadGoalSubmission,
			Payload: gateway.GoalSubmission{
				Description: args[0],
				DedupeKey:   goalDedupeKey,
			},
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmdOut, res.GoalID)
		return nil
	},
}

var goalShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a goal's current state and trace",
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

		goal, err := rt.st.GetGoal(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		traces, err := rt.st.ListTraces(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"goal": goal, "traces": traces})
	},
}

var goalCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Request cancellation of an in-flight goal",
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

		_, err = rt.gateway.Dispatch(cmd.Context(), gateway.Event{
			Origin:  gateway.OriginCLI,
			Kind:    gateway.PayloadCancel,
			Payload: gateway.Cancel{GoalID: args[0]},
		})
		return err
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(cmdOut)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// timeout is accepted on goal submit for interface-shape parity with the
// external spec's `goal submit --timeout` flag; the Run Executor bounds
// retries and replans from executor.Limits rather than a per-submission
// wall-clock, so this flag is currently cosmetic.
var goalTimeout time.Duration

func init() {
	goalSubmitCmd.Flags().StringVar(&goalDedupeKey, "dedupe-key", "", "reject this submission if a non-terminal goal shares this key")
	goalSubmitCmd.Flags().DurationVar(&goalTimeout, "timeout", 0, "reserved for future per-goal wall-clock budget")

	goalCmd.AddCommand(goalSubmitCmd, goalShowCmd, goalCancelCmd)
}
