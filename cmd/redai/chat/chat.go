package chatcmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"red-ai/cmd/redai/globalflags"
	"red-ai/internal/usecase"
)

const chatLongDesc string = `Record a user message in the conversation history.

The message is stored as a new user turn; no completion is requested.

Examples:
  redai chat u1 "hello there"
  redai chat --store sqlite --sqlite ./chat.db u1 "hello there"`

const chatShortDesc string = "Store a user message"

type chatCommander struct {
	flags *globalflags.Flags
}

func NewChatCmd(flags *globalflags.Flags) *cobra.Command {
	cmder := &chatCommander{flags: flags}

	return &cobra.Command{
		Use:   "chat <user-id> <message...>",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0], strings.Join(args[1:], " "))
		},
	}
}

func (c *chatCommander) run(ctx context.Context, cmd *cobra.Command, userID, message string) error {
	a, log, err := c.flags.Build(ctx, usecase.FlowIngest)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	defer a.Close()

	out, err := a.Pipeline.Ingest(ctx, usecase.IngestInput{UserID: userID, Message: message})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored message for %s\n", out.UserID)
	return nil
}
