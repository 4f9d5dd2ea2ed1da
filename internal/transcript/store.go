// Package transcript keeps the ordered message log of one conversation.
package transcript

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/user/pdfchat/internal/types"
)

var (
	ErrNotFound  = errors.New("message not found")
	ErrFinalized = errors.New("message is finalized")
	ErrNotOpen   = errors.New("only assistant messages can change")
	ErrDuplicate = errors.New("duplicate message id")
)

// ChangeKind describes what happened to the messages in a Change.
type ChangeKind string

const (
	ChangeAppended  ChangeKind = "appended"
	ChangeUpdated   ChangeKind = "updated"
	ChangeFinalized ChangeKind = "finalized"
)

// Change is delivered to observers after every mutation. Messages are copies
// taken at the moment of the change. Delta holds the appended text for
// updates produced by Append.
type Change struct {
	Kind     ChangeKind
	Messages []types.Message
	Delta    string
}

// Observer receives transcript changes synchronously, in mutation order.
// Observers may read the store but must not mutate it.
type Observer func(Change)

// Store is an append-only, ordered message log. Only the content of open
// assistant messages may change, and only until they are finalized.
type Store struct {
	mu        sync.RWMutex
	messages  []types.Message
	index     map[types.MessageID]int
	observers map[int]Observer
	nextObs   int
	notifyMu  sync.Mutex
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		index:     make(map[types.MessageID]int),
		observers: make(map[int]Observer),
	}
}

// Subscribe registers fn for future changes and returns a function that
// removes it.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Append adds messages at the end of the log. All of them become visible to
// readers and observers together.
func (s *Store) Append(msgs ...types.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	seen := make(map[types.MessageID]bool, len(msgs))
	for _, m := range msgs {
		if _, exists := s.index[m.ID]; exists || seen[m.ID] {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicate, m.ID)
		}
		seen[m.ID] = true
	}
	for _, m := range msgs {
		s.index[m.ID] = len(s.messages)
		s.messages = append(s.messages, m)
	}
	observers := s.snapshotObservers()
	s.mu.Unlock()

	s.emit(observers, Change{Kind: ChangeAppended, Messages: slices.Clone(msgs)})
	return nil
}

// AppendContent grows the content of an open assistant message.
func (s *Store) AppendContent(id types.MessageID, text string) error {
	return s.mutate(id, ChangeUpdated, text, func(m *types.Message) {
		m.Content += text
	})
}

// Replace overwrites the content of an open assistant message.
func (s *Store) Replace(id types.MessageID, content string) error {
	return s.mutate(id, ChangeUpdated, "", func(m *types.Message) {
		m.Content = content
	})
}

// Finalize freezes an open assistant message, recording its token count.
func (s *Store) Finalize(id types.MessageID, tokens int) error {
	return s.mutate(id, ChangeFinalized, "", func(m *types.Message) {
		m.Final = true
		m.Tokens = tokens
	})
}

// Get returns a copy of the message with the given id.
func (s *Store) Get(id types.MessageID) (types.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return types.Message{}, false
	}
	return s.messages[i], true
}

// Messages returns a copy of the log in display order.
func (s *Store) Messages() []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Store) mutate(id types.MessageID, kind ChangeKind, delta string, fn func(*types.Message)) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m := &s.messages[i]
	if m.Role != types.RoleAssistant {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is a %s message", ErrNotOpen, id, m.Role)
	}
	if m.Final {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFinalized, id)
	}
	fn(m)
	updated := *m
	observers := s.snapshotObservers()
	s.mu.Unlock()

	s.emit(observers, Change{Kind: kind, Messages: []types.Message{updated}, Delta: delta})
	return nil
}

// snapshotObservers returns observers in subscription order. Caller must
// hold s.mu.
func (s *Store) snapshotObservers() []Observer {
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Observer, len(ids))
	for i, id := range ids {
		out[i] = s.observers[id]
	}
	return out
}

// emit runs observers outside s.mu so they may read the store. notifyMu keeps
// deliveries in mutation order.
func (s *Store) emit(observers []Observer, c Change) {
	for _, fn := range observers {
		fn(c)
	}
}
