package types

import (
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageKind tells presentation layers what an assistant entry is for.
// User messages are always KindPrompt.
type MessageKind string

const (
	KindPrompt     MessageKind = "prompt"
	KindReply      MessageKind = "reply"
	KindReferences MessageKind = "references"
	KindNotice     MessageKind = "notice"
	KindGuidance   MessageKind = "guidance"
)

type Message struct {
	ID        MessageID   `json:"id"`
	Role      Role        `json:"role"`
	Kind      MessageKind `json:"kind"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
	Final     bool        `json:"final"`
	Tokens    int         `json:"tokens,omitempty"`
}

// SourceRef is one retrieved passage that contributed to a grounded answer.
type SourceRef struct {
	Document string   `json:"document"`
	Excerpt  string   `json:"excerpt"`
	Score    *float64 `json:"score,omitempty"`
}

type DocumentSession struct {
	DocumentID  DocumentID `json:"document_id"`
	DisplayName string     `json:"display_name"`
	SizeBytes   int64      `json:"size_bytes"`
	BoundAt     time.Time  `json:"bound_at"`
}

func NewUserMessage(text string) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleUser,
		Kind:      KindPrompt,
		Content:   text,
		CreatedAt: time.Now(),
		Final:     true,
	}
}

// NewAssistantMessage returns an open assistant message. Finalize it through
// the transcript once its content is complete.
func NewAssistantMessage(kind MessageKind, content string) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleAssistant,
		Kind:      kind,
		Content:   content,
		CreatedAt: time.Now(),
	}
}
