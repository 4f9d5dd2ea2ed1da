package telegram

import (
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/user/pdfchat/internal/transcript"
	"github.com/user/pdfchat/internal/types"
)

// placeholder stands in for a reply that has no content yet; Telegram
// rejects empty messages.
const placeholder = "…"

// streamer mirrors assistant messages of one transcript into a chat. Each
// message is sent once when appended and then edited in place. Edits while
// streaming are throttled by limiter; the edit on finalization always goes
// out.
type streamer struct {
	bot     Bot
	chatID  int64
	limiter *rate.Limiter

	mu   sync.Mutex
	sent map[types.MessageID]int
	last map[types.MessageID]string
}

func newStreamer(bot Bot, chatID int64, limiter *rate.Limiter) *streamer {
	return &streamer{
		bot:     bot,
		chatID:  chatID,
		limiter: limiter,
		sent:    make(map[types.MessageID]int),
		last:    make(map[types.MessageID]string),
	}
}

func (s *streamer) observe(c transcript.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range c.Messages {
		if m.Role != types.RoleAssistant {
			continue
		}
		switch c.Kind {
		case transcript.ChangeAppended:
			s.post(m)
		case transcript.ChangeUpdated:
			if s.limiter.Allow() {
				s.edit(m, false)
			}
		case transcript.ChangeFinalized:
			s.edit(m, true)
		}
	}
}

func (s *streamer) post(m types.Message) {
	text := splitMessage(display(m.Content))[0]
	sent, err := s.bot.Send(tgbotapi.NewMessage(s.chatID, text))
	if err != nil {
		slog.Error("send reply", "chat_id", s.chatID, "error", err)
		return
	}
	s.sent[m.ID] = sent.MessageID
	s.last[m.ID] = text
}

func (s *streamer) edit(m types.Message, final bool) {
	if _, ok := s.sent[m.ID]; !ok {
		s.post(m)
	}
	id, ok := s.sent[m.ID]
	if !ok {
		return
	}

	parts := splitMessage(display(m.Content))
	if parts[0] != s.last[m.ID] {
		if _, err := s.bot.Send(tgbotapi.NewEditMessageText(s.chatID, id, parts[0])); err != nil {
			slog.Warn("edit reply", "chat_id", s.chatID, "error", err)
		} else {
			s.last[m.ID] = parts[0]
		}
	}
	if !final {
		return
	}
	for _, part := range parts[1:] {
		if _, err := s.bot.Send(tgbotapi.NewMessage(s.chatID, part)); err != nil {
			slog.Error("send reply", "chat_id", s.chatID, "error", err)
		}
	}
	delete(s.sent, m.ID)
	delete(s.last, m.ID)
}

func display(content string) string {
	if content == "" {
		return placeholder
	}
	return content
}
