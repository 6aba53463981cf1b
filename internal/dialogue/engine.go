// Package dialogue produces the assistant's side of an intake conversation.
package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/h1v3-io/intake/internal/provider"
	"github.com/h1v3-io/intake/pkg/protocol"
)

// Engine asks the model for the next conversational reply.
type Engine struct {
	Provider  provider.Provider
	Model     string // empty uses the provider default
	Persona   string // empty uses DefaultPersona
	MaxTokens int
}

// NextReply returns the assistant's next utterance given the turns so far.
func (e *Engine) NextReply(ctx context.Context, turns []protocol.Turn) (string, error) {
	if len(turns) == 0 {
		return "", fmt.Errorf("dialogue: empty conversation")
	}

	persona := e.Persona
	if persona == "" {
		persona = DefaultPersona
	}
	maxTokens := e.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	msgs := make([]protocol.ChatMessage, 0, len(turns)+1)
	msgs = append(msgs, protocol.ChatMessage{Role: protocol.RoleSystem, Content: persona})
	msgs = append(msgs, protocol.ChatMessages(turns)...)

	resp, err := e.Provider.Chat(ctx, protocol.ChatRequest{
		Model:     e.Model,
		Messages:  msgs,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("dialogue: %s: %w", e.Provider.Name(), err)
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", fmt.Errorf("dialogue: %s returned an empty reply", e.Provider.Name())
	}
	return reply, nil
}
