package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/broker"
	"github.com/Djtony707/TITAN/internal/connector"
	"github.com/Djtony707/TITAN/internal/ids"
	"github.com/Djtony707/TITAN/internal/policy"
	"github.com/Djtony707/TITAN/internal/store"
)

var (
	connectorType      string
	connectorSecretKey string
	connectorFieldsRaw string
	connectorTestArgs  string
)

var connectorCmd = &cobra.Command{
	Use:   "connector",
	Short: "Manage connector instances (external API wrappers)",
}

var connectorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured connectors",
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

		cs, err := rt.st.ListConnectors(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cs)
	},
}

var connectorAddCmd = &cobra.Command{
	Use:   "add <display-name>",
	Short: "Register a new connector instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if connectorType == "" {
			return apperr.Validation("connector_type_required", fmt.Errorf("--type is required"))
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

		fields := map[string]string{}
		if connectorFieldsRaw != "" {
			if err := json.Unmarshal([]byte(connectorFieldsRaw), &fields); err != nil {
				return apperr.Validation("malformed_connector_fields", err)
			}
		}

		c := store.Connector{
			ID:          "conn-" + ids.New(),
			Type:        connectorType,
			DisplayName: args[0],
			Fields:      fields,
			SecretKey:   connectorSecretKey,
		}
		if err := rt.st.UpsertConnector(cmd.Context(), c); err != nil {
			return err
		}
		fmt.Fprintln(cmdOut, c.ID)
		return nil
	},
}

var connectorConfigureCmd = &cobra.Command{
	Use:   "configure <id>",
	Short: "Update an existing connector's fields or secret key",
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

		c, err := rt.st.GetConnector(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if connectorFieldsRaw != "" {
			fields := map[string]string{}
			if err := json.Unmarshal([]byte(connectorFieldsRaw), &fields); err != nil {
				return apperr.Validation("malformed_connector_fields", err)
			}
			c.Fields = fields
		}
		if connectorSecretKey != "" {
			c.SecretKey = connectorSecretKey
		}
		return rt.st.UpsertConnector(cmd.Context(), c)
	},
}

var connectorRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a connector instance",
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

		return rt.st.RemoveConnector(cmd.Context(), args[0])
	},
}

var connectorTestCmd = &cobra.Command{
	Use:   "test <id> <operation>",
	Short: "Invoke one connector operation through the Tool Broker",
	Args:  cobra.ExactArgs(2),
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

		var opArgs map[string]any
		if connectorTestArgs != "" {
			if err := json.Unmarshal([]byte(connectorTestArgs), &opArgs); err != nil {
				return apperr.Validation("malformed_operation_args", err)
			}
		}

		goalID := "cli-" + ids.New()
		if err := rt.st.CreateGoal(cmd.Context(), store.Goal{
			ID:          goalID,
			Description: "connector test: " + args[0] + "." + args[1],
			Origin:      "cli",
			SubmittedAt: time.Now().UTC(),
			State:       store.GoalRunning,
		}); err != nil {
			return err
		}

		outcome := rt.broker.Execute(cmd.Context(), broker.Request{
			GoalID:   goalID,
			StepID:   "adhoc",
			ToolName: connector.ToolName(args[0], args[1]),
			Args:     opArgs,
			Mode:     policy.AutonomyMode(cfg.Autonomy.Mode),
			Risk:     policy.RiskMode(cfg.Autonomy.RiskMode),
		})

		finalState := store.GoalDone
		if outcome.Err != nil {
			finalState = store.GoalFailed
		}
		_ = rt.st.SetGoalState(cmd.Context(), goalID, finalState)

		if outcome.Err != nil {
			return outcome.Err
		}
		fmt.Fprintln(cmdOut, outcome.Output)
		return nil
	},
}

func init() {
	connectorAddCmd.Flags().StringVar(&connectorType, "type", "", "connector type, e.g. rest")
	connectorAddCmd.Flags().StringVar(&connectorSecretKey, "secret-key", "", "key to resolve through the Secrets chain")
	connectorAddCmd.Flags().StringVar(&connectorFieldsRaw, "fields", "", "JSON object of non-secret connector fields")
	connectorConfigureCmd.Flags().StringVar(&connectorSecretKey, "secret-key", "", "key to resolve through the Secrets chain")
	connectorConfigureCmd.Flags().StringVar(&connectorFieldsRaw, "fields", "", "JSON object of non-secret connector fields")
	connectorTestCmd.Flags().StringVar(&connectorTestArgs, "args", "", "JSON object of operation arguments")

	connectorCmd.AddCommand(connectorListCmd, connectorAddCmd, connectorConfigureCmd, connectorRemoveCmd, connectorTestCmd)
}
