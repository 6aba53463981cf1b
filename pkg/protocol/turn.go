package protocol

import "time"

// Turn is one utterance in an intake conversation.
type Turn struct {
	Role string    `json:"role"` // RoleUser or RoleAssistant
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// ChatMessages converts turns into provider messages, oldest first.
func ChatMessages(turns []Turn) []ChatMessage {
	msgs := make([]ChatMessage, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, ChatMessage{Role: t.Role, Content: t.Text})
	}
	return msgs
}

// FirstUserText returns the text of the earliest user turn, or "".
func FirstUserText(turns []Turn) string {
	for _, t := range turns {
		if t.Role == RoleUser {
			return t.Text
		}
	}
	return ""
}
