package console

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/pdfchat/internal/transcript"
	"github.com/user/pdfchat/internal/types"
)

func newStore(t *testing.T) (*transcript.Store, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	store := transcript.New()
	store.Subscribe(NewPrinter(&buf).Observe)
	return store, &buf
}

func TestPrinterStreamsReply(t *testing.T) {
	store, buf := newStore(t)

	reply := types.NewAssistantMessage(types.KindReply, "")
	require.NoError(t, store.Append(types.NewUserMessage("Hello"), reply))
	require.NoError(t, store.AppendContent(reply.ID, "Hi"))
	assert.True(t, strings.HasSuffix(buf.String(), "Hi"), "fragment printed immediately")
	require.NoError(t, store.AppendContent(reply.ID, " there"))
	require.NoError(t, store.Finalize(reply.ID, 0))

	out := buf.String()
	assert.NotContains(t, out, "Hello", "user input is not echoed")
	assert.Contains(t, out, "Hi there\n")
	assert.Contains(t, out, "pdfchat")
}

func TestPrinterShowsReplacedContent(t *testing.T) {
	store, buf := newStore(t)

	reply := types.NewAssistantMessage(types.KindReply, "")
	require.NoError(t, store.Append(reply))
	require.NoError(t, store.AppendContent(reply.ID, "Paris"))
	require.NoError(t, store.Replace(reply.ID, "Sorry, something went wrong."))
	require.NoError(t, store.Finalize(reply.ID, 0))

	out := buf.String()
	assert.Contains(t, out, "Paris\n")
	assert.True(t, strings.HasSuffix(out, "Sorry, something went wrong.\n"))
}

func TestPrinterNoticesAndReferences(t *testing.T) {
	store, buf := newStore(t)

	for _, m := range []types.Message{
		types.NewAssistantMessage(types.KindNotice, "I've uploaded the file: a.pdf (1.00 KB)"),
		types.NewAssistantMessage(types.KindReferences, "References:\n\n• Source 1 (a.pdf):\ntext"),
	} {
		require.NoError(t, store.Append(m))
		require.NoError(t, store.Finalize(m.ID, 0))
	}

	out := buf.String()
	assert.Contains(t, out, "I've uploaded the file: a.pdf (1.00 KB)\n")
	assert.Contains(t, out, "Source 1 (a.pdf)")
}

func TestPrinterIgnoresOtherMessagesUpdates(t *testing.T) {
	store, buf := newStore(t)

	first := types.NewAssistantMessage(types.KindReply, "")
	require.NoError(t, store.Append(first))
	require.NoError(t, store.Finalize(first.ID, 0))
	before := buf.Len()

	// A finalized message cannot change; nothing new is printed.
	assert.Error(t, store.AppendContent(first.ID, "late"))
	assert.Equal(t, before, buf.Len())
}
