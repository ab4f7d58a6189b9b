package model

// Role identifies the author of a conversation message.
type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
)

// Message is one entry in the conversation transcript. The transcript is
// append-only; messages are never mutated or reordered once recorded.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// HumanMessage builds a user-authored message.
func HumanMessage(content string) Message {
	return Message{Role: RoleHuman, Content: content}
}

// AIMessage builds an assistant-authored message.
func AIMessage(content string) Message {
	return Message{Role: RoleAI, Content: content}
}

// LastByRole returns the most recent message with the given role, scanning
// backwards, and whether one was found.
func LastByRole(messages []Message, role Role) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == role {
			return messages[i], true
		}
	}
	return Message{}, false
}

// FirstByRole returns the earliest message with the given role.
func FirstByRole(messages []Message, role Role) (Message, bool) {
	for _, m := range messages {
		if m.Role == role {
			return m, true
		}
	}
	return Message{}, false
}

// TailTurns returns at most n of the most recent messages.
func TailTurns(messages []Message, n int) []Message {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
