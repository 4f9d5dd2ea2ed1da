// Package telegram serves conversations over a Telegram bot. Replies stream
// into the chat by editing the bot's message as fragments arrive.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/user/pdfchat/internal/conversation"
	"github.com/user/pdfchat/internal/gateway"
	"github.com/user/pdfchat/internal/turn"
	"github.com/user/pdfchat/internal/types"
)

const (
	maxTelegramMessage = 4096
	maxDocumentBytes   = 20 << 20
	editInterval       = time.Second
)

const (
	startText = "Hello! Send me a message to chat, or switch to /pdf and upload a PDF to ask questions about it.\n\n" +
		"Commands: /chat, /pdf, /reset, /status"
	busyText = "Still working on your previous message. Please wait for it to finish."
)

// Bot is the subset of the Telegram API the adapter uses. *tgbotapi.BotAPI
// satisfies it.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Adapter bridges Telegram to the gateway.
type Adapter struct {
	bot     Bot
	gateway *gateway.Gateway
	client  *http.Client

	// newLimiter builds the edit throttle for one streamed turn.
	newLimiter func() *rate.Limiter

	mu    sync.Mutex
	modes map[int64]conversation.Mode
}

// New creates a Telegram adapter.
func New(bot Bot, gw *gateway.Gateway) *Adapter {
	return &Adapter{
		bot:        bot,
		gateway:    gw,
		client:     &http.Client{Timeout: 60 * time.Second},
		newLimiter: func() *rate.Limiter { return rate.NewLimiter(rate.Every(editInterval), 1) },
		modes:      make(map[int64]conversation.Mode),
	}
}

// NewBot connects to the Telegram API with token.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return bot, nil
}

// Start long-polls bot for updates until ctx is canceled.
func (a *Adapter) Start(ctx context.Context, bot *tgbotapi.BotAPI) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := bot.GetUpdatesChan(u)
	slog.Info("telegram polling started", "bot", bot.Self.UserName)

	for {
		select {
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		a.handleCommand(msg)
		return
	}

	chatID := msg.Chat.ID
	in := &gateway.Inbound{
		Source: "telegram",
		ChatID: strconv.FormatInt(chatID, 10),
		Mode:   a.mode(chatID),
		Text:   msg.Text,
	}

	if msg.Document != nil {
		data, err := a.download(ctx, msg.Document)
		if err != nil {
			slog.Warn("document download failed", "chat_id", chatID, "error", err)
			a.sendText(chatID, "Failed to upload file. Please try again.")
			return
		}
		// Uploading always targets the document conversation.
		a.setMode(chatID, conversation.ModeDocument)
		in.Mode = conversation.ModeDocument
		in.Upload = &gateway.Upload{Name: msg.Document.FileName, Data: data}
	} else if msg.Text == "" {
		return
	}

	conv := a.gateway.Conversation(in.Key(), in.Mode)
	if conv.State() != turn.StateIdle {
		a.sendText(chatID, busyText)
		return
	}
	s := newStreamer(a.bot, chatID, a.newLimiter())
	unsubscribe := conv.Transcript().Subscribe(s.observe)

	_, err := a.gateway.HandleInbound(in, func(_ *conversation.Conversation, err error) {
		unsubscribe()
		if err != nil && in.Upload == nil {
			a.sendText(chatID, rejectionText(err))
		}
	})
	if err != nil {
		unsubscribe()
		a.sendText(chatID, rejectionText(err))
	}
}

func (a *Adapter) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start", "help":
		a.sendText(chatID, startText)

	case "chat":
		a.setMode(chatID, conversation.ModeGeneral)
		a.sendText(chatID, "Chat mode. Ask me anything.")

	case "pdf":
		a.setMode(chatID, conversation.ModeDocument)
		a.sendText(chatID, "PDF mode. Upload a PDF, then ask questions about it.")

	case "reset":
		key := a.key(chatID)
		if a.gateway.Reset(key) {
			a.sendText(chatID, "Conversation cleared.")
		} else {
			a.sendText(chatID, "Nothing to clear.")
		}

	case "status":
		a.sendText(chatID, a.status(chatID))

	default:
		a.sendText(chatID, "Unknown command. Available: /start, /chat, /pdf, /reset, /status")
	}
}

func (a *Adapter) status(chatID int64) string {
	mode := a.mode(chatID)
	s, ok := a.gateway.Summary(a.key(chatID))
	if !ok {
		return fmt.Sprintf("Mode: %s\nNo messages yet.", mode)
	}
	text := fmt.Sprintf("Mode: %s\nState: %s\nMessages: %d", mode, s.State, s.Messages)
	if s.Document != nil {
		text += fmt.Sprintf("\nDocument: %s", s.Document.DisplayName)
	}
	return text
}

func (a *Adapter) download(ctx context.Context, doc *tgbotapi.Document) ([]byte, error) {
	if doc.FileSize > maxDocumentBytes {
		return nil, fmt.Errorf("document %s too large: %d bytes", doc.FileName, doc.FileSize)
	}
	url, err := a.bot.GetFileDirectURL(doc.FileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) > maxDocumentBytes {
		return nil, fmt.Errorf("document %s too large", doc.FileName)
	}
	return data, nil
}

func (a *Adapter) mode(chatID int64) conversation.Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	if m, ok := a.modes[chatID]; ok {
		return m
	}
	return conversation.ModeGeneral
}

func (a *Adapter) setMode(chatID int64, m conversation.Mode) {
	a.mu.Lock()
	a.modes[chatID] = m
	a.mu.Unlock()
}

func (a *Adapter) key(chatID int64) types.ConversationKey {
	return buildKey(chatID, a.mode(chatID))
}

func (a *Adapter) sendText(chatID int64, text string) {
	for _, part := range splitMessage(text) {
		if _, err := a.bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			slog.Error("send message", "chat_id", chatID, "error", err)
		}
	}
}

func rejectionText(err error) string {
	if errors.Is(err, gateway.ErrBusy) || turn.IsValidation(err) {
		return busyText
	}
	return "Sorry, something went wrong."
}

// splitMessage cuts text into chunks Telegram accepts, never inside a UTF-8
// sequence.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end >= len(text) {
			end = len(text)
		} else {
			for end > 0 && !utf8.RuneStart(text[end]) {
				end--
			}
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

func buildKey(chatID int64, mode conversation.Mode) types.ConversationKey {
	return gateway.Key("telegram", strconv.FormatInt(chatID, 10), mode)
}
