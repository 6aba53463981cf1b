package connector

import (
	"context"
	"errors"
)

// Connector is the interface for the chat platform the bot listens on.
type Connector interface {
	// Name returns the connector type (e.g., "slack").
	Name() string
	// Start begins listening for inbound events. Blocks until context is cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the connector.
	Stop() error
	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error
}

// Directory resolves platform metadata.
type Directory interface {
	// ChannelInfo looks up a channel's name and whether it is a direct message.
	ChannelInfo(ctx context.Context, channelID string) (ChannelInfo, error)
	// UserName returns the user's display name.
	UserName(ctx context.Context, userID string) (string, error)
	// FindChannel returns the ID of the public channel with the given name.
	FindChannel(ctx context.Context, name string) (string, error)
}

// OutboundMessage is a message posted by the bot.
type OutboundMessage struct {
	ChannelID string
	Text      string // Markdown; connectors convert to the platform dialect
	ThreadTS  string // reply in this thread when set
}

// InboundMessage is a message event received from the platform.
type InboundMessage struct {
	ChannelID   string
	ChannelType string // "channel", "group", "im", "mpim"
	UserID      string
	Text        string
	TS          string
	ThreadTS    string // empty for top-level messages
	BotID       string // set when posted by a bot
	SubType     string // edits, deletes, joins, etc.
}

// ChannelInfo describes a channel.
type ChannelInfo struct {
	ID   string
	Name string
	IsIM bool
}

// InboundHandler processes messages received from the platform.
type InboundHandler func(ctx context.Context, msg InboundMessage) error

// ErrChannelNotFound is returned by Directory.FindChannel when no channel matches.
var ErrChannelNotFound = errors.New("channel not found")
