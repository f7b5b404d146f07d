package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	chatcmder "red-ai/cmd/redai/chat"
	completecmder "red-ai/cmd/redai/complete"
	conversecmder "red-ai/cmd/redai/converse"
	"red-ai/cmd/redai/globalflags"
	servecmder "red-ai/cmd/redai/serve"
	speakcmder "red-ai/cmd/redai/speak"
	"red-ai/internal/usecase"
)

const rootLongDesc string = `redai drives the conversation pipeline from the command line.

Configuration comes from the environment (CHAT_TABLE, OPENAI_API_KEY,
AUDIO_BUCKET, ...) optionally layered over a TOML file given with --config.`

func newRootCmd() *cobra.Command {
	flags := &globalflags.Flags{}

	cmd := &cobra.Command{
		Use:           "redai",
		Short:         "Conversation pipeline CLI",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags.Register(cmd)

	cmd.AddCommand(chatcmder.NewChatCmd(flags))
	cmd.AddCommand(completecmder.NewCompleteCmd(flags))
	cmd.AddCommand(speakcmder.NewSpeakCmd(flags))
	cmd.AddCommand(conversecmder.NewConverseCmd(flags))
	cmd.AddCommand(servecmder.NewServeCmd(flags))

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if kind, ok := usecase.KindOf(err); ok {
			fmt.Fprintf(os.Stderr, "Error (%s): %v\n", kind, err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}
