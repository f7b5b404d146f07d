package speakcmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"red-ai/cmd/redai/globalflags"
	"red-ai/internal/usecase"
)

const speakLongDesc string = `Synthesize speech for text and publish the MP3 to the audio bucket.

Every call publishes a new object and prints its URL.

Examples:
  redai speak "Hello from the pipeline"
  AUDIO_BUCKET=clips SPEECH_BACKEND=polly redai speak "Hello"`

const speakShortDesc string = "Synthesize and publish speech"

type speakCommander struct {
	flags *globalflags.Flags
}

func NewSpeakCmd(flags *globalflags.Flags) *cobra.Command {
	cmder := &speakCommander{flags: flags}

	return &cobra.Command{
		Use:   "speak <text...>",
		Short: speakShortDesc,
		Long:  speakLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, strings.Join(args, " "))
		},
	}
}

func (c *speakCommander) run(ctx context.Context, cmd *cobra.Command, text string) error {
	a, log, err := c.flags.Build(ctx, usecase.FlowSynthesize)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	defer a.Close()

	out, err := a.Pipeline.Synthesize(ctx, usecase.SynthesisInput{Text: text})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.AudioURL)
	return nil
}
