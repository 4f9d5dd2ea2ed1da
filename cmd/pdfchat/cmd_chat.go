package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/pdfchat/internal/config"
	"github.com/user/pdfchat/internal/console"
	"github.com/user/pdfchat/internal/conversation"
)

var chatDocument bool

func init() {
	chatCmd.Flags().BoolVarP(&chatDocument, "document", "d", false, "ask questions about an uploaded PDF instead of chatting")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func newConversation(cfg *config.Config, mode conversation.Mode) *conversation.Conversation {
	opts := []conversation.Option{
		conversation.WithKey("cli"),
		conversation.WithMode(mode),
		conversation.WithNResults(cfg.Backend.NResults),
	}
	if counter := newCounter(cfg); counter != nil {
		opts = append(opts, conversation.WithTokenCounter(counter))
	}
	return conversation.New(newBackend(cfg), opts...)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	mode := conversation.ModeGeneral
	if chatDocument {
		mode = conversation.ModeDocument
	}
	conv := newConversation(cfg, mode)
	defer conv.Close()

	printer := console.NewPrinter(os.Stdout)
	conv.Transcript().Subscribe(printer.Observe)

	if mode == conversation.ModeDocument {
		fmt.Println("Document mode. Upload a PDF with /upload <path>, then ask questions. /quit to exit.")
	} else {
		fmt.Println("Chat mode. /quit to exit.")
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(printer.Prompt())
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/status":
			printStatus(conv)
			continue
		case strings.HasPrefix(line, "/upload"):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/upload"))
			if err := uploadFile(conv, path); err != nil && !errors.Is(err, errUsage) {
				fmt.Fprintln(os.Stderr, "Error:", err)
			}
			continue
		}

		// Ctrl-C cancels the turn in flight, not the session.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		err := conv.Submit(ctx, line)
		stop()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
}

var errUsage = errors.New("usage")

func uploadFile(conv *conversation.Conversation, path string) error {
	if path == "" {
		fmt.Fprintln(os.Stderr, "Usage: /upload <path>")
		return errUsage
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	// Failures are also reported in the transcript.
	_, err = conv.BindDocument(ctx, data, filepath.Base(path))
	return err
}

func printStatus(conv *conversation.Conversation) {
	fmt.Printf("Mode: %s\nMessages: %d\n", conv.Mode(), conv.Transcript().Len())
	if doc := conv.Document(); doc != nil {
		fmt.Printf("Document: %s (%s)\n", doc.DisplayName, doc.DocumentID)
	}
}
