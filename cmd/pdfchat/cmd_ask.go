package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/pdfchat/internal/console"
	"github.com/user/pdfchat/internal/conversation"
	"github.com/user/pdfchat/internal/types"
)

var askFile string

func init() {
	askCmd.Flags().StringVarP(&askFile, "file", "f", "", "PDF to upload and ground the question in")
	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and print the streamed answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		mode := conversation.ModeGeneral
		if askFile != "" {
			mode = conversation.ModeDocument
		}
		conv := newConversation(cfg, mode)
		defer conv.Close()

		conv.Transcript().Subscribe(console.NewPrinter(os.Stdout).Observe)

		if askFile != "" {
			if err := uploadFile(conv, askFile); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := conv.Submit(ctx, strings.Join(args, " ")); err != nil {
			return err
		}

		// The turn itself reports failures in the transcript; surface them
		// in the exit status too.
		if replyFailed(conv.Transcript().Messages()) {
			return errors.New("no answer received")
		}
		return nil
	},
}

func replyFailed(msgs []types.Message) bool {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Kind == types.KindReply {
			return msgs[i].Content == conversation.ErrorMessage
		}
	}
	return false
}
