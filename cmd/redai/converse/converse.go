package conversecmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"red-ai/cmd/redai/globalflags"
	"red-ai/internal/usecase"
)

const converseLongDesc string = `Store a message, generate the reply and, when an audio bucket is
configured, speak it.

Examples:
  redai converse u1 "what's the weather like on Mars?"
  redai converse --store sqlite u1 "tell me a joke"`

const converseShortDesc string = "Run one full conversation turn"

type converseCommander struct {
	flags *globalflags.Flags
}

func NewConverseCmd(flags *globalflags.Flags) *cobra.Command {
	cmder := &converseCommander{flags: flags}

	return &cobra.Command{
		Use:   "converse <user-id> <message...>",
		Short: converseShortDesc,
		Long:  converseLongDesc,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0], strings.Join(args[1:], " "))
		},
	}
}

func (c *converseCommander) run(ctx context.Context, cmd *cobra.Command, userID, message string) error {
	cfg, err := c.flags.Config()
	if err != nil {
		return err
	}
	flows := globalflags.SpeechFlows(cfg, usecase.FlowIngest, usecase.FlowComplete)
	a, log, err := globalflags.BuildFrom(ctx, cfg, flows...)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	defer a.Close()

	out, err := a.Pipeline.Converse(ctx, usecase.ConverseInput{UserID: userID, Message: message})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.Completion)
	if out.AudioURL != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Audio: %s\n", out.AudioURL)
	}
	return nil
}
