// Package conversation drives request/response turns against the backend and
// merges streamed answers into the conversation transcript.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/user/pdfchat/internal/document"
	"github.com/user/pdfchat/internal/stream"
	"github.com/user/pdfchat/internal/transcript"
	"github.com/user/pdfchat/internal/turn"
	"github.com/user/pdfchat/internal/types"
	"github.com/user/pdfchat/pkg/backend"
)

const (
	// ErrorMessage replaces a reply whose stream failed.
	ErrorMessage = "Sorry, something went wrong."

	// GuidanceMessage answers document questions asked before any upload.
	GuidanceMessage = "Please upload a PDF file first before asking questions about it."
)

var (
	ErrEmptyInput      = errors.New("empty input")
	ErrClosed          = errors.New("conversation closed")
	ErrDocumentsInChat = errors.New("documents can only be bound in document mode")
)

// Mode selects between free chat and questions grounded in an uploaded document.
type Mode string

const (
	ModeGeneral  Mode = "general"
	ModeDocument Mode = "document"
)

// Conversation owns one transcript and runs at most one turn at a time.
type Conversation struct {
	key        types.ConversationKey
	mode       Mode
	backend    backend.Backend
	transcript *transcript.Store
	guard      *turn.Guard
	docs       *document.Manager
	counter    types.TokenCounter
	nResults   int

	mu     sync.Mutex
	cancel context.CancelFunc
	upload context.CancelFunc
	closed bool
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithMode sets the conversation mode. The default is ModeGeneral.
func WithMode(m Mode) Option {
	return func(c *Conversation) { c.mode = m }
}

// WithKey names the conversation in logs.
func WithKey(key types.ConversationKey) Option {
	return func(c *Conversation) { c.key = key }
}

// WithTokenCounter records token counts on finalized replies.
func WithTokenCounter(counter types.TokenCounter) Option {
	return func(c *Conversation) { c.counter = counter }
}

// WithNResults sets how many passages grounded questions retrieve.
func WithNResults(n int) Option {
	return func(c *Conversation) { c.nResults = n }
}

// New creates an idle conversation with an empty transcript.
func New(be backend.Backend, opts ...Option) *Conversation {
	c := &Conversation{
		mode:       ModeGeneral,
		backend:    be,
		transcript: transcript.New(),
		guard:      turn.NewGuard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.docs = document.NewManager(be, c.guard, c.transcript)
	return c
}

// Key returns the conversation's key.
func (c *Conversation) Key() types.ConversationKey { return c.key }

// Mode returns the conversation's mode.
func (c *Conversation) Mode() Mode { return c.mode }

// Transcript returns the conversation's message log.
func (c *Conversation) Transcript() *transcript.Store { return c.transcript }

// State returns the current turn state.
func (c *Conversation) State() turn.State { return c.guard.State() }

// Watch registers fn for turn state changes.
func (c *Conversation) Watch(fn func(turn.State)) { c.guard.Watch(fn) }

// Document returns the bound document, or nil.
func (c *Conversation) Document() *types.DocumentSession { return c.docs.RequireBinding() }

// BindDocument uploads a document and binds it to this conversation. Close
// cancels a pending upload.
func (c *Conversation) BindDocument(ctx context.Context, data []byte, name string) (*types.DocumentSession, error) {
	if c.mode != ModeDocument {
		return nil, ErrDocumentsInChat
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.upload != nil {
		c.mu.Unlock()
		return nil, turn.ErrUploadInProgress
	}
	c.upload = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.upload = nil
		c.mu.Unlock()
	}()

	return c.docs.Bind(ctx, data, name)
}

// Submit runs one turn for text. It returns an error only when the turn is
// rejected up front (blank input, another turn or upload active, closed
// conversation); in that case the transcript is unchanged. Backend failures
// are reported in the transcript and Submit returns nil.
func (c *Conversation) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	if c.isClosed() {
		return ErrClosed
	}
	if err := c.guard.Begin(turn.StateStreaming); err != nil {
		return err
	}
	defer c.guard.End()

	req := backend.AskRequest{Query: text, NResults: c.nResults}
	if c.mode == ModeDocument {
		session := c.docs.RequireBinding()
		if session == nil {
			slog.Info("document question without a bound document", "conversation", string(c.key))
			c.appendFinal(types.KindGuidance, GuidanceMessage)
			return nil
		}
		req.DocumentID = string(session.DocumentID)
	}

	user := types.NewUserMessage(text)
	reply := types.NewAssistantMessage(types.KindReply, "")
	if err := c.transcript.Append(user, reply); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c.setCancel(cancel)
	defer func() {
		c.setCancel(nil)
		cancel()
	}()

	c.run(ctx, reply.ID, req)
	return nil
}

// Close tears the conversation down. An in-flight turn is canceled and its
// reply is finalized as streamed so far, without the error message. A pending
// upload is abandoned and leaves no notice.
func (c *Conversation) Close() {
	c.mu.Lock()
	c.closed = true
	cancel, upload := c.cancel, c.upload
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if upload != nil {
		upload()
	}
}

// run applies the stream's events to the pending reply. Every path through
// it finalizes the reply.
func (c *Conversation) run(ctx context.Context, id types.MessageID, req backend.AskRequest) {
	fragments := 0
	for ev := range stream.Events(ctx, c.backend, req) {
		if c.isClosed() {
			slog.Debug("conversation closed mid-stream", "conversation", string(c.key), "fragments", fragments)
			c.finalize(id)
			return
		}

		switch ev.Kind {
		case stream.KindFragment:
			fragments++
			if err := c.transcript.AppendContent(id, ev.Text); err != nil {
				slog.Error("append fragment", "conversation", string(c.key), "error", err)
			}

		case stream.KindCompletion:
			tokens := c.finalize(id)
			slog.Info("turn complete",
				"conversation", string(c.key),
				"grounded", req.Grounded(),
				"fragments", fragments,
				"tokens", tokens,
				"sources", len(ev.Sources),
			)
			if req.Grounded() && len(ev.Sources) > 0 {
				c.appendFinal(types.KindReferences, FormatReferences(ev.Sources))
			}
			return

		case stream.KindFailure:
			slog.Warn("turn failed",
				"conversation", string(c.key),
				"fragments", fragments,
				"canceled", errors.Is(ev.Err, context.Canceled),
				"error", ev.Reason,
			)
			c.fail(id)
			return
		}
	}

	// stream.Events always ends with a terminal event; this keeps a reply
	// from staying open if that ever changes.
	c.fail(id)
}

func (c *Conversation) fail(id types.MessageID) {
	if err := c.transcript.Replace(id, ErrorMessage); err != nil {
		slog.Error("replace failed reply", "conversation", string(c.key), "error", err)
	}
	c.finalize(id)
}

func (c *Conversation) finalize(id types.MessageID) int {
	tokens := 0
	if c.counter != nil {
		if msg, ok := c.transcript.Get(id); ok {
			tokens = c.counter.Count(msg.Content)
		}
	}
	if err := c.transcript.Finalize(id, tokens); err != nil {
		slog.Error("finalize reply", "conversation", string(c.key), "error", err)
	}
	return tokens
}

func (c *Conversation) appendFinal(kind types.MessageKind, content string) {
	msg := types.NewAssistantMessage(kind, content)
	if err := c.transcript.Append(msg); err != nil {
		slog.Error("append message", "conversation", string(c.key), "kind", string(kind), "error", err)
		return
	}
	c.finalize(msg.ID)
}

func (c *Conversation) setCancel(cancel context.CancelFunc) {
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
}

func (c *Conversation) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// IsValidation reports whether err rejected a turn before it started.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, ErrClosed) ||
		errors.Is(err, ErrDocumentsInChat) ||
		turn.IsValidation(err)
}
