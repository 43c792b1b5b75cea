package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/gateway"
	"github.com/Djtony707/TITAN/internal/store"
)

var (
	approvalResolver string
	approvalReason   string
)

var approvalCmd = &cobra.Command{
	Use:   "approval",
	Short: "Inspect and resolve pending approvals",
}

var approvalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every approval, pending or resolved",
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

		approvals, err := rt.st.ListApprovals(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(approvals)
	},
}

var approvalShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single approval",
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

		a, err := rt.st.GetApproval(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(a)
	},
}

func decideApprovalCmd(decision store.Decision) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
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
			Origin:  gateway.OriginCLI,
			ActorID: approvalResolver,
			Kind:    gateway.PayloadApprovalDecision,
			Payload: gateway.ApprovalDecision{
				ApprovalID: args[0],
				Decision:   decision,
				Reason:     approvalReason,
				Resolver:   approvalResolver,
			},
		})
		if err != nil {
			return err
		}
		if !res.Claimed {
			return apperr.Validation("approval_already_resolved", nil)
		}
		return nil
	}
}

var approvalApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a pending approval",
	Args:  cobra.ExactArgs(1),
	RunE:  decideApprovalCmd(store.DecisionApproved),
}

var approvalDenyCmd = &cobra.Command{
	Use:   "deny <id>",
	Short: "Deny a pending approval",
	Args:  cobra.ExactArgs(1),
	RunE:  decideApprovalCmd(store.DecisionDenied),
}

var approvalWaitCmd = &cobra.Command{
	Use:   "wait <id>",
	Short: "Block until an approval is resolved or its TTL expires",
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

		decision, err := rt.approvals.Await(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmdOut, decision)
		if decision != store.DecisionApproved {
			return apperr.ApprovalTimeout("approval_not_granted")
		}
		return nil
	},
}

var approvalWaitTimeout time.Duration

func init() {
	approvalApproveCmd.Flags().StringVar(&approvalResolver, "resolver", "", "identity recorded as having resolved this approval")
	approvalApproveCmd.Flags().StringVar(&approvalReason, "reason", "", "free-text reason attached to the decision")
	approvalDenyCmd.Flags().StringVar(&approvalResolver, "resolver", "", "identity recorded as having resolved this approval")
	approvalDenyCmd.Flags().StringVar(&approvalReason, "reason", "", "free-text reason attached to the decision")
	approvalWaitCmd.Flags().DurationVar(&approvalWaitTimeout, "timeout", 0, "reserved: Await already blocks on the approval's own TTL deadline")

	approvalCmd.AddCommand(approvalListCmd, approvalShowCmd, approvalApproveCmd, approvalDenyCmd, approvalWaitCmd)
}
