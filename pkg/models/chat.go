package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChatRole represents the role of a chat message sender.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ValidChatRoles contains all valid chat role values.
var ValidChatRoles = []ChatRole{ChatRoleUser, ChatRoleAssistant}

// IsValidChatRole checks if the given role is valid.
func IsValidChatRole(r ChatRole) bool {
	for _, v := range ValidChatRoles {
		if v == r {
			return true
		}
	}
	return false
}

// Chat represents a conversation thread within a project.
type Chat struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessage represents one stored message in a chat.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	ChatID    uuid.UUID `json:"chat_id"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// FormatHistory renders messages as the plain-text transcript fed into
// prompts, one "role: content" line per message.
func FormatHistory(messages []*ChatMessage) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
