// Package gateway keeps one conversation per chat and mode for front-ends that
// serve many users, and schedules their turns and uploads.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/user/pdfchat/internal/conversation"
	"github.com/user/pdfchat/internal/turn"
	"github.com/user/pdfchat/internal/types"
	"github.com/user/pdfchat/pkg/backend"
)

// ErrBusy is returned when the conversation already has a turn or upload
// active.
var ErrBusy = errors.New("conversation busy")

// Inbound is one message from a front-end. Exactly one of Text or Upload is
// set.
type Inbound struct {
	Source string
	ChatID string
	Mode   conversation.Mode
	Text   string
	Upload *Upload
}

// Upload is a document a user sent along with an Inbound message.
type Upload struct {
	Name string
	Data []byte
}

// Key returns the conversation key for the message.
func (in *Inbound) Key() types.ConversationKey {
	return Key(in.Source, in.ChatID, in.Mode)
}

// Key builds the conversation key for a chat in the given mode.
func Key(source, chatID string, mode conversation.Mode) types.ConversationKey {
	return types.NewConversationKey(source, chatID, string(mode))
}

// Options configures the conversations a Gateway creates.
type Options struct {
	MaxConcurrent int64
	NResults      int
	Counter       types.TokenCounter
}

// Summary is a point-in-time view of one conversation.
type Summary struct {
	Key       types.ConversationKey  `json:"key"`
	Mode      conversation.Mode      `json:"mode"`
	State     turn.State             `json:"state"`
	Messages  int                    `json:"messages"`
	Document  *types.DocumentSession `json:"document,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type entry struct {
	conv    *conversation.Conversation
	created time.Time

	// claimed is set under Gateway.mu from the moment work is scheduled
	// until it returns, covering the wait for a pool slot.
	claimed bool
}

// Gateway resolves (or creates) conversations for inbound messages and runs
// their turns on a bounded pool.
type Gateway struct {
	backend backend.Backend
	opts    Options
	Pool    *Pool

	mu            sync.RWMutex
	conversations map[types.ConversationKey]*entry
}

// New creates a Gateway. MaxConcurrent defaults to 2.
func New(be backend.Backend, opts Options) *Gateway {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	return &Gateway{
		backend:       be,
		opts:          opts,
		Pool:          NewPool(opts.MaxConcurrent),
		conversations: make(map[types.ConversationKey]*entry),
	}
}

// Start initialises the gateway's context and starts the pool.
func (g *Gateway) Start(ctx context.Context) {
	g.Pool.Start(ctx)
}

// Stop closes every conversation and waits for outstanding work to finish.
func (g *Gateway) Stop() {
	g.mu.Lock()
	for _, e := range g.conversations {
		e.conv.Close()
	}
	g.mu.Unlock()
	g.Pool.Stop()
}

// Conversation returns the conversation for key in mode, creating it on
// first use.
func (g *Gateway) Conversation(key types.ConversationKey, mode conversation.Mode) *conversation.Conversation {
	g.mu.RLock()
	e, ok := g.conversations[key]
	g.mu.RUnlock()
	if ok {
		return e.conv
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entryLocked(key, mode).conv
}

func (g *Gateway) entryLocked(key types.ConversationKey, mode conversation.Mode) *entry {
	if e, ok := g.conversations[key]; ok {
		return e
	}
	opts := []conversation.Option{
		conversation.WithKey(key),
		conversation.WithMode(mode),
		conversation.WithNResults(g.opts.NResults),
	}
	if g.opts.Counter != nil {
		opts = append(opts, conversation.WithTokenCounter(g.opts.Counter))
	}
	e := &entry{conv: conversation.New(g.backend, opts...), created: time.Now()}
	g.conversations[key] = e
	slog.Info("conversation created", "conversation", string(key), "mode", string(mode))
	return e
}

// Lookup returns an existing conversation.
func (g *Gateway) Lookup(key types.ConversationKey) (*conversation.Conversation, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.conversations[key]
	if !ok {
		return nil, false
	}
	return e.conv, true
}

// HandleInbound resolves the message's conversation and schedules its turn
// or upload. It returns ErrBusy without scheduling anything when the
// conversation is not idle or already has work waiting for a pool slot;
// otherwise done receives the result once the work ends and may be nil.
func (g *Gateway) HandleInbound(in *Inbound, done func(*conversation.Conversation, error)) (*conversation.Conversation, error) {
	key := in.Key()

	g.mu.Lock()
	e := g.entryLocked(key, in.Mode)
	if e.claimed || e.conv.State() != turn.StateIdle {
		g.mu.Unlock()
		slog.Debug("inbound rejected", "conversation", string(key), "error", ErrBusy)
		return e.conv, ErrBusy
	}
	e.claimed = true
	g.mu.Unlock()

	conv := e.conv
	g.Pool.Go(string(key), func(ctx context.Context) {
		var err error
		if in.Upload != nil {
			_, err = conv.BindDocument(ctx, in.Upload.Data, in.Upload.Name)
		} else {
			err = conv.Submit(ctx, in.Text)
		}
		g.release(e)

		if err != nil && turn.IsValidation(err) {
			err = errors.Join(ErrBusy, err)
		}
		if err != nil {
			slog.Warn("inbound rejected", "conversation", string(key), "error", err)
		}
		if done != nil {
			done(conv, err)
		}
	})
	return conv, nil
}

func (g *Gateway) release(e *entry) {
	g.mu.Lock()
	e.claimed = false
	g.mu.Unlock()
}

// Reset closes the conversation for key and forgets it. The next message for
// the same key starts a fresh conversation.
func (g *Gateway) Reset(key types.ConversationKey) bool {
	g.mu.Lock()
	e, ok := g.conversations[key]
	delete(g.conversations, key)
	g.mu.Unlock()

	if !ok {
		return false
	}
	e.conv.Close()
	slog.Info("conversation reset", "conversation", string(key))
	return true
}

// List returns a summary of every conversation, ordered by key.
func (g *Gateway) List() []Summary {
	g.mu.RLock()
	out := make([]Summary, 0, len(g.conversations))
	for _, e := range g.conversations {
		out = append(out, summarize(e))
	}
	g.mu.RUnlock()

	slices.SortFunc(out, func(a, b Summary) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
	return out
}

// Summary returns the summary for key.
func (g *Gateway) Summary(key types.ConversationKey) (Summary, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.conversations[key]
	if !ok {
		return Summary{}, false
	}
	return summarize(e), true
}

func summarize(e *entry) Summary {
	return Summary{
		Key:       e.conv.Key(),
		Mode:      e.conv.Mode(),
		State:     e.conv.State(),
		Messages:  e.conv.Transcript().Len(),
		Document:  e.conv.Document(),
		CreatedAt: e.created,
	}
}
