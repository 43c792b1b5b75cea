package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/gateway"
)

var (
	commActor   string
	commTimeout time.Duration
)

var commCmd = &cobra.Command{
	Use:   "comm",
	Short: "Drive the Gateway's chat-origin path from the local terminal",
}

// comm send submits a goal the same way a real chat adapter would -
// Origin: chat, with a channel target - and blocks on the Gateway's
// notification channel for its terminal state. No concrete chat transport
// (Discord, Slack) is wired in this build, but the Gateway's chat-origin
// dispatch and notification path are real; this command exercises them
// directly rather than stubbing the whole group.
var commSendCmd = &cobra.Command{
	Use:   "send <channel> <text>",
	Short: "Submit a goal as if it arrived from a chat channel, and wait for its outcome",
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

		channel, text := args[0], args[1]
		res, err := rt.gateway.Dispatch(cmd.Context(), gateway.Event{
			Origin:        gateway.OriginChat,
			ChannelTarget: channel,
			ActorID:       commActor,
			Kind:          gateway.PayloadGoalSubmission,
			Payload:       gateway.GoalSubmission{Description: text},
		})
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if commTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, commTimeout)
			defer cancel()
		}
		for {
			select {
			case note := <-rt.gateway.Notifications():
				if note.GoalID != res.GoalID {
					continue
				}
				fmt.Fprintf(cmdOut, "%s -> %s\n", res.GoalID, note.Outcome)
				return nil
			case <-ctx.Done():
				fmt.Fprintln(cmdOut, res.GoalID)
				return nil
			}
		}
	},
}

// comm list and comm status name a multi-channel adapter registry (spec
// §6's chat surface) that has no concrete transport built in this
// codebase - comm send above is the Gateway's only chat-origin entrypoint.
var commListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured chat channels (not implemented: no chat adapter is wired)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return apperr.NotImplemented("comm_list")
	},
}

var commStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show chat adapter connection status (not implemented: no chat adapter is wired)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return apperr.NotImplemented("comm_status")
	},
}

func init() {
	commSendCmd.Flags().StringVar(&commActor, "actor", "", "identity recorded as having submitted this goal")
	commSendCmd.Flags().DurationVar(&commTimeout, "timeout", 2*time.Minute, "how long to wait for the goal's terminal notification")

	commCmd.AddCommand(commSendCmd, commListCmd, commStatusCmd)
}
