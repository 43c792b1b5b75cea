package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/broker"
	"github.com/Djtony707/TITAN/internal/ids"
	"github.com/Djtony707/TITAN/internal/logging"
	"github.com/Djtony707/TITAN/internal/policy"
	"github.com/Djtony707/TITAN/internal/store"
)

var toolInputJSON string

var toolCmd = &cobra.Command{
	Use:   "tool",
	Short: "Run a single Tool Broker tool directly, outside any goal",
}

var toolRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Invoke a registered tool through the Tool Broker (policy-gated)",
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

		var toolArgs map[string]any
		if toolInputJSON != "" {
			if err := json.Unmarshal([]byte(toolInputJSON), &toolArgs); err != nil {
				return apperr.Validation("malformed_tool_input", err)
			}
		}

		// tool run bypasses the Planner/Run Executor entirely, but
		// trace_events.goal_id is a foreign key into goals, so the
		// invocation still needs a minimal, immediately-terminalized goal
		// row to record its trace against.
		goalID := "cli-" + ids.New()
		if err := rt.st.CreateGoal(cmd.Context(), store.Goal{
			ID:          goalID,
			Description: "adhoc tool invocation: " + args[0],
			Origin:      "cli",
			SubmittedAt: time.Now().UTC(),
			State:       store.GoalRunning,
		}); err != nil {
			return err
		}

		outcome := rt.broker.Execute(cmd.Context(), broker.Request{
			GoalID:   goalID,
			StepID:   "adhoc",
			ToolName: args[0],
			Args:     toolArgs,
			Mode:     policy.AutonomyMode(cfg.Autonomy.Mode),
			Risk:     policy.RiskMode(cfg.Autonomy.RiskMode),
		})

		finalState := store.GoalDone
		if outcome.Err != nil {
			finalState = store.GoalFailed
		}
		if serr := rt.st.SetGoalState(cmd.Context(), goalID, finalState); serr != nil {
			logging.For(logging.CategoryBroker).Sugar().Errorf("finalize adhoc tool goal %s: %v", goalID, serr)
		}

		if outcome.Err != nil {
			return outcome.Err
		}
		fmt.Fprintln(cmdOut, outcome.Output)
		return nil
	},
}

func init() {
	toolRunCmd.Flags().StringVar(&toolInputJSON, "input", "", "JSON object of tool arguments")
	toolCmd.AddCommand(toolRunCmd)
}
