package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Djtony707/TITAN/internal/policy"
)

var yoloCmd = &cobra.Command{
	Use:   "yolo",
	Short: "Arm, disarm, or inspect the time-boxed risk-bypass window",
}

var yoloArmDuration string

var yoloArmCmd = &cobra.Command{
	Use:   "arm [duration]",
	Short: "Arm YOLO bypass for a wall-clock window (default from config.autonomy.yolo_default_duration)",
	Args:  cobra.MaximumNArgs(1),
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

		raw := yoloArmDuration
		if raw == "" && len(args) == 1 {
			raw = args[0]
		}
		if raw == "" {
			raw = cfg.Autonomy.YoloDefaultDuration
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", raw, err)
		}

		until := time.Now().UTC().Add(d)
		if err := rt.st.SetYoloArmedUntil(cmd.Context(), until); err != nil {
			return err
		}
		fmt.Fprintf(cmdOut, "yolo armed until %s\n", until.Format(time.RFC3339))
		return nil
	},
}

var yoloDisarmCmd = &cobra.Command{
	Use:   "disarm",
	Short: "Disarm YOLO bypass immediately",
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

		if err := rt.st.ClearYoloArmed(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmdOut, "yolo disarmed")
		return nil
	},
}

var yoloStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether YOLO bypass is currently armed",
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

		armedUntil, err := rt.st.GetYoloArmedUntil(cmd.Context())
		if err != nil {
			return err
		}
		status := struct {
			Armed      bool       `json:"armed"`
			ArmedUntil *time.Time `json:"armed_until,omitempty"`
			RiskMode   string     `json:"risk_mode"`
		}{
			RiskMode: string(policy.Secure),
		}
		if armedUntil != nil && time.Now().UTC().Before(*armedUntil) {
			status.Armed = true
			status.ArmedUntil = armedUntil
			status.RiskMode = string(policy.Yolo)
		}
		return printJSON(status)
	},
}

func init() {
	yoloArmCmd.Flags().StringVar(&yoloArmDuration, "duration", "", "arm window, e.g. 60s (default config.autonomy.yolo_default_duration)")
	yoloCmd.AddCommand(yoloArmCmd, yoloDisarmCmd, yoloStatusCmd)
}
