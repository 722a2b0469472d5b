package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Chat roles understood by every backend
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message represents a single chat message
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Session represents a chat session
type Session struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	Backend   string    `json:"backend"`
	Messages  []Message `json:"messages"`
}

// Summary is a lightweight listing entry for a stored session
type Summary struct {
	ID           string
	StartTime    time.Time
	Backend      string
	MessageCount int
}

// New creates an empty session bound to a backend
func New(backend string) *Session {
	return &Session{
		ID:        "session_" + uuid.NewString(),
		StartTime: time.Now(),
		Backend:   backend,
		Messages:  []Message{},
	}
}

// Append adds a message stamped with the current time
func (s *Session) Append(role, content string) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// Snapshot returns a copy of the message history
func (s *Session) Snapshot() []Message {
	messages := make([]Message, len(s.Messages))
	copy(messages, s.Messages)
	return messages
}

// Turns normalizes a chat history: empty messages are dropped and roles are lower-cased
// to the known set, anything unrecognised becoming a user message.
func Turns(messages []Message) []Message {
	turns := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		var role string
		switch strings.ToLower(strings.TrimSpace(msg.Role)) {
		case RoleAssistant, "bot", "model":
			role = RoleAssistant
		case RoleSystem:
			role = RoleSystem
		default:
			role = RoleUser
		}
		turns = append(turns, Message{Role: role, Content: msg.Content, Timestamp: msg.Timestamp})
	}
	return turns
}
