package types

import (
	"strings"

	"github.com/google/uuid"
)

type MessageID string
type DocumentID string
type ConversationKey string

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func NewConversationKey(parts ...string) ConversationKey {
	return ConversationKey(strings.Join(parts, ":"))
}
