package completecmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"red-ai/cmd/redai/globalflags"
	"red-ai/internal/usecase"
)

const completeLongDesc string = `Generate the next assistant reply from the stored conversation.

Only the stored history is sent to the model. Run "redai chat" first to
add the user's message, or use "redai converse" to do both.

Examples:
  redai complete u1
  redai complete --config ./redai.toml u1`

const completeShortDesc string = "Generate a reply from history"

type completeCommander struct {
	flags *globalflags.Flags
}

func NewCompleteCmd(flags *globalflags.Flags) *cobra.Command {
	cmder := &completeCommander{flags: flags}

	return &cobra.Command{
		Use:   "complete <user-id> [prompt...]",
		Short: completeShortDesc,
		Long:  completeLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0], strings.Join(args[1:], " "))
		},
	}
}

func (c *completeCommander) run(ctx context.Context, cmd *cobra.Command, userID, prompt string) error {
	a, log, err := c.flags.Build(ctx, usecase.FlowComplete)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	defer a.Close()

	out, err := a.Pipeline.Complete(ctx, usecase.CompletionInput{UserID: userID, Prompt: prompt})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.Completion)
	return nil
}
