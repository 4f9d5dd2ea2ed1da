package stream

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/user/pdfchat/pkg/backend"
)

// Asker opens an ask stream. backend.Backend satisfies it.
type Asker interface {
	Ask(ctx context.Context, req backend.AskRequest) (io.ReadCloser, error)
}

// Events opens req against asker and yields its events. The sequence is lazy
// and single-pass: the request is sent when iteration starts, the body is read
// only as events are pulled, and it is closed on every exit, including an
// early break by the consumer. Exactly one Completion or Failure ends it.
func Events(ctx context.Context, asker Asker, req backend.AskRequest) iter.Seq[Event] {
	used := false
	return func(yield func(Event) bool) {
		if used {
			yield(failure(errors.New("stream already consumed")))
			return
		}
		used = true

		body, err := asker.Ask(ctx, req)
		if err != nil {
			yield(failure(contextErr(ctx, err)))
			return
		}
		defer body.Close()

		dec := NewDecoder(body)
		for {
			ev, ok := dec.Next()
			if !ok {
				return
			}
			if ev.Kind == KindFailure {
				ev = failure(contextErr(ctx, ev.Err))
			}
			if !yield(ev) || ev.Terminal() {
				return
			}
		}
	}
}

// contextErr prefers the context's own error once it is done, so callers can
// tell a cancellation apart from a transport failure with errors.Is.
func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return errors.Join(ctxErr, err)
	}
	return err
}
