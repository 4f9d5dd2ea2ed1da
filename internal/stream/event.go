// Package stream turns an incremental ask response into an ordered,
// single-pass sequence of events that always ends in exactly one terminal
// event.
package stream

import (
	"github.com/user/pdfchat/internal/types"
)

// Kind identifies which variant an Event carries.
type Kind int

const (
	KindFragment Kind = iota + 1
	KindCompletion
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindFragment:
		return "fragment"
	case KindCompletion:
		return "completion"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Event is one step of an answer stream.
//
// Fragment events carry Text. The single Completion event carries Sources in
// retrieval order. The single Failure event carries a human-readable Reason
// and the underlying Err.
type Event struct {
	Kind    Kind
	Text    string
	Sources []types.SourceRef
	Reason  string
	Err     error
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool {
	return e.Kind == KindCompletion || e.Kind == KindFailure
}

func fragment(text string) Event {
	return Event{Kind: KindFragment, Text: text}
}

func completion(sources []types.SourceRef) Event {
	return Event{Kind: KindCompletion, Sources: sources}
}

func failure(err error) Event {
	return Event{Kind: KindFailure, Reason: err.Error(), Err: err}
}
