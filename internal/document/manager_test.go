package document

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/pdfchat/internal/transcript"
	"github.com/user/pdfchat/internal/turn"
	"github.com/user/pdfchat/internal/types"
	"github.com/user/pdfchat/pkg/backend"
)

type fakeIngester struct {
	results []*backend.IngestResult
	errs    []error
	calls   int
	during  func()
}

func (f *fakeIngester) Ingest(_ context.Context, req backend.IngestRequest) (*backend.IngestResult, error) {
	i := f.calls
	f.calls++
	if f.during != nil {
		f.during()
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return &backend.IngestResult{DocumentID: "doc", Filename: req.Filename}, nil
}

func setup(ing *fakeIngester) (*Manager, *turn.Guard, *transcript.Store) {
	guard := turn.NewGuard()
	store := transcript.New()
	return NewManager(ing, guard, store), guard, store
}

func TestRequireBindingBeforeBind(t *testing.T) {
	m, _, _ := setup(&fakeIngester{})
	assert.Nil(t, m.RequireBinding())
}

func TestBindSuccess(t *testing.T) {
	ing := &fakeIngester{results: []*backend.IngestResult{{DocumentID: "abc", Filename: "report.pdf"}}}
	m, guard, store := setup(ing)

	data := make([]byte, 2048)
	session, err := m.Bind(context.Background(), data, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, types.DocumentID("abc"), session.DocumentID)
	assert.Equal(t, "report.pdf", session.DisplayName)
	assert.Equal(t, int64(2048), session.SizeBytes)
	assert.False(t, session.BoundAt.IsZero())

	assert.Equal(t, session.DocumentID, m.RequireBinding().DocumentID)
	assert.Equal(t, turn.StateIdle, guard.State())

	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, types.KindNotice, msgs[0].Kind)
	assert.Equal(t, "I've uploaded the file: report.pdf (2.00 KB)", msgs[0].Content)
	assert.True(t, msgs[0].Final)
}

func TestBindFailureKeepsPriorBinding(t *testing.T) {
	ing := &fakeIngester{
		results: []*backend.IngestResult{{DocumentID: "first", Filename: "a.pdf"}},
		errs:    []error{nil, errors.New("boom")},
	}
	m, guard, store := setup(ing)

	_, err := m.Bind(context.Background(), []byte("a"), "a.pdf")
	require.NoError(t, err)

	_, err = m.Bind(context.Background(), []byte("b"), "b.pdf")
	require.Error(t, err)
	assert.ErrorContains(t, err, "boom")

	require.NotNil(t, m.RequireBinding())
	assert.Equal(t, types.DocumentID("first"), m.RequireBinding().DocumentID)
	assert.Equal(t, turn.StateIdle, guard.State())

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, uploadFailedNotice, msgs[1].Content)
}

func TestBindFailureThenSuccessReturnsLatest(t *testing.T) {
	ing := &fakeIngester{
		errs:    []error{errors.New("rejected")},
		results: []*backend.IngestResult{nil, {DocumentID: "second", Filename: "b.pdf"}},
	}
	m, _, _ := setup(ing)

	_, err := m.Bind(context.Background(), []byte("a"), "a.pdf")
	require.Error(t, err)
	assert.Nil(t, m.RequireBinding())

	_, err = m.Bind(context.Background(), []byte("b"), "b.pdf")
	require.NoError(t, err)
	assert.Equal(t, types.DocumentID("second"), m.RequireBinding().DocumentID)
}

func TestBindReplacesSession(t *testing.T) {
	ing := &fakeIngester{results: []*backend.IngestResult{
		{DocumentID: "one", Filename: "one.pdf"},
		{DocumentID: "two", Filename: "two.pdf"},
	}}
	m, _, _ := setup(ing)

	_, err := m.Bind(context.Background(), []byte("1"), "one.pdf")
	require.NoError(t, err)
	_, err = m.Bind(context.Background(), []byte("2"), "two.pdf")
	require.NoError(t, err)

	assert.Equal(t, "two.pdf", m.RequireBinding().DisplayName)
}

func TestBindRejectedWhileStreaming(t *testing.T) {
	ing := &fakeIngester{}
	m, guard, store := setup(ing)
	require.NoError(t, guard.Begin(turn.StateStreaming))

	_, err := m.Bind(context.Background(), []byte("x"), "x.pdf")
	assert.ErrorIs(t, err, turn.ErrTurnInProgress)
	assert.Equal(t, 0, ing.calls)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, turn.StateStreaming, guard.State())
}

func TestBindHoldsAwaitingUpload(t *testing.T) {
	var during turn.State
	ing := &fakeIngester{}
	m, guard, _ := setup(ing)
	ing.during = func() { during = guard.State() }

	_, err := m.Bind(context.Background(), []byte("x"), "x.pdf")
	require.NoError(t, err)
	assert.Equal(t, turn.StateAwaitingUpload, during)
}

func TestRequireBindingReturnsCopy(t *testing.T) {
	m, _, _ := setup(&fakeIngester{})
	_, err := m.Bind(context.Background(), []byte("x"), "x.pdf")
	require.NoError(t, err)

	s := m.RequireBinding()
	s.DisplayName = "changed"
	assert.Equal(t, "x.pdf", m.RequireBinding().DisplayName)
}

func TestBindCanceledPostsNoNotice(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ing := &fakeIngester{during: cancel}
	m, guard, store := setup(ing)

	_, err := m.Bind(ctx, []byte("x"), "x.pdf")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, m.RequireBinding())
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, turn.StateIdle, guard.State())
}
