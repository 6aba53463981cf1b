// Package bot routes chat messages through the intake dialogue and files
// a ticket when the conversation wraps up.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/h1v3-io/intake/internal/connector"
	"github.com/h1v3-io/intake/internal/conversation"
	"github.com/h1v3-io/intake/internal/dialogue"
	"github.com/h1v3-io/intake/pkg/protocol"
)

// Replier produces the assistant's next utterance.
type Replier interface {
	NextReply(ctx context.Context, turns []protocol.Turn) (string, error)
}

// TicketFiler files a finished conversation.
type TicketFiler interface {
	File(ctx context.Context, st conversation.State) (protocol.FiledTicket, error)
}

// Chat is the slice of the chat platform the handler talks to.
type Chat interface {
	Send(ctx context.Context, msg connector.OutboundMessage) error
	ChannelInfo(ctx context.Context, channelID string) (connector.ChannelInfo, error)
}

// Handler processes inbound chat messages.
type Handler struct {
	Store          *conversation.Store
	Dialogue       Replier
	Filer          TicketFiler
	Chat           Chat
	FeatureChannel string // channel name, without '#'
	Logger         *slog.Logger

	mu       sync.Mutex
	channels map[string]connector.ChannelInfo
}

// HandleMessage runs one inbound message through the conversation. It matches
// connector.InboundHandler. Failures are logged and swallowed; the user gets
// no reply when something breaks.
func (h *Handler) HandleMessage(ctx context.Context, msg connector.InboundMessage) error {
	if msg.BotID != "" || msg.SubType != "" || msg.UserID == "" {
		return nil
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}

	direct, ok, err := h.accepts(ctx, msg)
	if err != nil {
		return fmt.Errorf("bot: %w", err)
	}
	if !ok {
		return nil
	}

	// Top-level DMs pick their conversation from the channel, so the channel
	// stays locked from key resolution until the reply is handled.
	if direct && msg.ThreadTS == "" {
		releaseChannel := h.Store.Acquire(dmLockKey(msg.ChannelID))
		defer releaseChannel()
	}

	key, anchor := h.keyFor(msg, direct)
	logger := h.logger().With("conversation", key, "channel", msg.ChannelID, "user", msg.UserID)

	release := h.Store.Acquire(key)
	defer release()

	_, created := h.Store.GetOrCreate(key, conversation.Origin{
		UserID:    msg.UserID,
		ChannelID: msg.ChannelID,
		ThreadTS:  anchor,
		DirectMsg: direct,
	})
	if created {
		logger.Info("conversation started", "direct", direct)
	}
	h.Store.Append(key, protocol.RoleUser, msg.Text)

	st, _ := h.Store.Get(key)
	reply, err := h.Dialogue.NextReply(ctx, st.Turns)
	if err != nil {
		logger.Error("dialogue failed, no reply sent", "error", err)
		return nil
	}
	h.Store.Append(key, protocol.RoleAssistant, reply)

	out := connector.OutboundMessage{ChannelID: msg.ChannelID, Text: reply}
	if !direct {
		out.ThreadTS = anchor
	}
	if err := h.Chat.Send(ctx, out); err != nil {
		logger.Error("reply failed", "error", err)
		return nil
	}

	if !dialogue.IsClosing(reply) {
		logger.Debug("reply sent", "turns", len(st.Turns)+1)
		return nil
	}

	st, _ = h.Store.Get(key)
	ticket, err := h.Filer.File(ctx, st)
	if err != nil {
		logger.Error("filing failed, conversation kept", "error", err)
		return nil
	}
	h.Store.Remove(key)
	logger.Info("conversation closed", "issue", ticket.Identifier, "url", ticket.URL)
	return nil
}

// SweepIdle evicts conversations that have gone quiet. Runs on the scheduler.
func (h *Handler) SweepIdle(_ context.Context) error {
	evicted := h.Store.EvictIdle()
	for _, key := range evicted {
		h.logger().Info("idle conversation evicted", "conversation", key)
	}
	if len(evicted) > 0 {
		h.logger().Info("idle sweep", "evicted", len(evicted), "remaining", h.Store.Len())
	}
	return nil
}

// accepts reports whether msg is in the feature channel or a direct message.
func (h *Handler) accepts(ctx context.Context, msg connector.InboundMessage) (direct, ok bool, err error) {
	if msg.ChannelType == "im" {
		return true, true, nil
	}
	info, err := h.channelInfo(ctx, msg.ChannelID)
	if err != nil {
		return false, false, err
	}
	if info.IsIM {
		return true, true, nil
	}
	return false, info.Name == strings.TrimPrefix(h.FeatureChannel, "#"), nil
}

// keyFor derives the conversation key and thread anchor. Replies in DMs are
// unthreaded, so a top-level DM continues the channel's open conversation.
func (h *Handler) keyFor(msg connector.InboundMessage, direct bool) (key, anchor string) {
	if msg.ThreadTS != "" {
		return conversation.Key(msg.ChannelID, msg.ThreadTS), msg.ThreadTS
	}
	if direct {
		if key, ok := h.Store.ActiveInChannel(msg.ChannelID); ok {
			if st, ok := h.Store.Get(key); ok {
				return key, st.Origin.ThreadTS
			}
		}
	}
	return conversation.Key(msg.ChannelID, msg.TS), msg.TS
}

func dmLockKey(channelID string) string { return "dm/" + channelID }

func (h *Handler) channelInfo(ctx context.Context, channelID string) (connector.ChannelInfo, error) {
	h.mu.Lock()
	info, ok := h.channels[channelID]
	h.mu.Unlock()
	if ok {
		return info, nil
	}

	info, err := h.Chat.ChannelInfo(ctx, channelID)
	if err != nil {
		return connector.ChannelInfo{}, err
	}

	h.mu.Lock()
	if h.channels == nil {
		h.channels = make(map[string]connector.ChannelInfo)
	}
	h.channels[channelID] = info
	h.mu.Unlock()
	return info, nil
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
