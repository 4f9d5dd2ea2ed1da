package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/pdfchat/pkg/backend"
)

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

type fakeAsker struct {
	body  *trackingBody
	err   error
	calls int
	last  backend.AskRequest
}

func (f *fakeAsker) Ask(_ context.Context, req backend.AskRequest) (io.ReadCloser, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

func newFakeAsker(body string) *fakeAsker {
	return &fakeAsker{body: &trackingBody{Reader: strings.NewReader(body)}}
}

func collect(seq func(func(Event) bool)) []Event {
	var events []Event
	for ev := range seq {
		events = append(events, ev)
	}
	return events
}

func TestEventsIsLazy(t *testing.T) {
	asker := newFakeAsker("data: {\"content\": \"Hi\"}\n\n")
	seq := Events(context.Background(), asker, backend.AskRequest{Query: "Hello"})
	assert.Equal(t, 0, asker.calls, "request must not be sent before iteration")

	events := collect(seq)
	assert.Equal(t, 1, asker.calls)
	assert.Equal(t, "Hello", asker.last.Query)
	require.Len(t, events, 2)
	assert.True(t, asker.body.closed)
}

func TestEventsOpenErrorIsSingleFailure(t *testing.T) {
	asker := &fakeAsker{err: &backend.StatusError{Code: 502, Reason: "Bad Gateway"}}

	events := collect(Events(context.Background(), asker, backend.AskRequest{Query: "q"}))
	require.Len(t, events, 1)
	assert.Equal(t, KindFailure, events[0].Kind)

	var statusErr *backend.StatusError
	assert.True(t, errors.As(events[0].Err, &statusErr))
}

func TestEventsEarlyBreakClosesBody(t *testing.T) {
	asker := newFakeAsker("data: {\"content\": \"a\"}\n\ndata: {\"content\": \"b\"}\n\n")

	for ev := range Events(context.Background(), asker, backend.AskRequest{Query: "q"}) {
		assert.Equal(t, "a", ev.Text)
		break
	}
	assert.True(t, asker.body.closed)
}

func TestEventsNotRestartable(t *testing.T) {
	asker := newFakeAsker("data: {\"content\": \"a\"}\n\n")
	seq := Events(context.Background(), asker, backend.AskRequest{Query: "q"})

	collect(seq)
	again := collect(seq)
	require.Len(t, again, 1)
	assert.Equal(t, KindFailure, again[0].Kind)
	assert.Equal(t, 1, asker.calls)
}

func TestEventsCancellationIsDistinguishable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	asker := &fakeAsker{err: errors.New("sending request: net/http: request canceled")}

	events := collect(Events(ctx, asker, backend.AskRequest{Query: "q"}))
	require.Len(t, events, 1)
	assert.Equal(t, KindFailure, events[0].Kind)
	assert.ErrorIs(t, events[0].Err, context.Canceled)
}
