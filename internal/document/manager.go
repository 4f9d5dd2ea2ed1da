// Package document tracks the document bound to a conversation and its
// upload lifecycle.
package document

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/pdfchat/internal/transcript"
	"github.com/user/pdfchat/internal/turn"
	"github.com/user/pdfchat/internal/types"
	"github.com/user/pdfchat/pkg/backend"
)

const uploadFailedNotice = "Failed to upload file. Please try again."

// Ingester uploads documents. backend.Backend satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, req backend.IngestRequest) (*backend.IngestResult, error)
}

// Manager holds at most one live DocumentSession. A successful upload
// replaces it; a failed one leaves it untouched.
type Manager struct {
	ingester   Ingester
	guard      *turn.Guard
	transcript *transcript.Store

	mu      sync.RWMutex
	session *types.DocumentSession
}

// NewManager creates a Manager. guard and store are shared with the
// conversation that owns this manager.
func NewManager(ingester Ingester, guard *turn.Guard, store *transcript.Store) *Manager {
	return &Manager{
		ingester:   ingester,
		guard:      guard,
		transcript: store,
	}
}

// Bind uploads data under name and makes it the conversation's document.
// While the upload is pending no turn may start. Bind returns a turn
// validation error without side effects when a turn or another upload is
// already active. An upload whose ctx is canceled binds nothing and posts no
// notice.
func (m *Manager) Bind(ctx context.Context, data []byte, name string) (*types.DocumentSession, error) {
	if err := m.guard.Begin(turn.StateAwaitingUpload); err != nil {
		return nil, err
	}
	defer m.guard.End()

	slog.Info("uploading document", "name", name, "size_bytes", len(data))

	result, err := m.ingester.Ingest(ctx, backend.IngestRequest{Filename: name, Data: data})
	if cerr := ctx.Err(); cerr != nil {
		slog.Info("document upload canceled", "name", name)
		return nil, fmt.Errorf("ingest %s: %w", name, cerr)
	}
	if err != nil {
		slog.Warn("document upload failed", "name", name, "error", err)
		m.notice(uploadFailedNotice)
		return nil, fmt.Errorf("ingest %s: %w", name, err)
	}

	session := &types.DocumentSession{
		DocumentID:  types.DocumentID(result.DocumentID),
		DisplayName: displayName(name, result.Filename),
		SizeBytes:   int64(len(data)),
		BoundAt:     time.Now(),
	}

	m.mu.Lock()
	previous := m.session
	m.session = session
	m.mu.Unlock()

	if previous != nil {
		slog.Info("document replaced", "previous", string(previous.DocumentID), "document_id", string(session.DocumentID))
	}
	slog.Info("document bound", "document_id", string(session.DocumentID), "name", session.DisplayName)

	m.notice(uploadedNotice(session))
	return session, nil
}

// RequireBinding returns the live session, or nil when no document has been
// bound yet.
func (m *Manager) RequireBinding() *types.DocumentSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

func (m *Manager) notice(text string) {
	msg := types.NewAssistantMessage(types.KindNotice, text)
	if err := m.transcript.Append(msg); err != nil {
		slog.Error("append notice", "error", err)
		return
	}
	if err := m.transcript.Finalize(msg.ID, 0); err != nil {
		slog.Error("finalize notice", "error", err)
	}
}

func uploadedNotice(s *types.DocumentSession) string {
	return fmt.Sprintf("I've uploaded the file: %s (%.2f KB)", s.DisplayName, float64(s.SizeBytes)/1024)
}

func displayName(requested, reported string) string {
	if reported != "" {
		return reported
	}
	return requested
}
