package slackconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/h1v3-io/intake/internal/connector"
)

// Config holds Slack connector configuration.
type Config struct {
	BotToken string // xoxb-... Bot User OAuth Token
	AppToken string // xapp-... App-Level Token (for Socket Mode)
	Home     HomeConfig
}

// Connector implements connector.Connector and connector.Directory for Slack via Socket Mode.
type Connector struct {
	api       *slack.Client
	socket    *socketmode.Client
	config    Config
	handler   connector.InboundHandler
	logger    *slog.Logger
	cancel    context.CancelFunc
	botUserID string
	inflight  sync.WaitGroup
}

// New creates a new Slack connector and verifies the bot token.
func New(cfg Config, handler connector.InboundHandler, logger *slog.Logger) (*Connector, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: bot_token is required")
	}
	if cfg.AppToken == "" {
		return nil, fmt.Errorf("slack: app_token is required (Socket Mode)")
	}
	if logger == nil {
		logger = slog.Default()
	}

	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))

	authResp, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack: auth test: %w", err)
	}
	logger.Info("slack bot authorized", "user", authResp.User, "team", authResp.Team)

	return &Connector{
		api:       api,
		socket:    socketmode.New(api),
		config:    cfg,
		handler:   handler,
		logger:    logger,
		botUserID: authResp.UserID,
	}, nil
}

func (c *Connector) Name() string { return "slack" }

// Start begins listening for events via Socket Mode. Blocks until context is cancelled,
// then waits for in-flight message handlers to return.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	events := make(chan struct{})
	go func() {
		defer close(events)
		c.handleEvents(ctx)
	}()

	c.logger.Info("slack connector started (socket mode)")
	err := c.socket.RunContext(ctx)
	stopped := ctx.Err() != nil

	// No dispatch may start once the event loop is gone.
	c.cancel()
	<-events
	c.inflight.Wait()

	if stopped {
		return nil
	}
	if err == nil {
		err = errors.New("socket mode client stopped")
	}
	return fmt.Errorf("slack: %w", err)
}

// Stop gracefully shuts down the connector.
func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send posts a message, threaded when msg.ThreadTS is set.
func (c *Connector) Send(ctx context.Context, msg connector.OutboundMessage) error {
	opts := []slack.MsgOption{
		slack.MsgOptionText(MarkdownToMrkdwn(msg.Text), false),
	}
	if msg.ThreadTS != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ThreadTS))
	}

	if _, _, err := c.api.PostMessageContext(ctx, msg.ChannelID, opts...); err != nil {
		return fmt.Errorf("slack: send message: %w", err)
	}
	return nil
}

// ChannelInfo looks up a channel's name and whether it is a direct message.
func (c *Connector) ChannelInfo(ctx context.Context, channelID string) (connector.ChannelInfo, error) {
	ch, err := c.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channelID})
	if err != nil {
		return connector.ChannelInfo{}, fmt.Errorf("slack: channel info %s: %w", channelID, err)
	}
	return connector.ChannelInfo{ID: ch.ID, Name: ch.Name, IsIM: ch.IsIM}, nil
}

// UserName returns the user's display name, falling back to the real name and handle.
func (c *Connector) UserName(ctx context.Context, userID string) (string, error) {
	u, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("slack: user info %s: %w", userID, err)
	}
	for _, name := range []string{u.Profile.DisplayName, u.RealName, u.Name} {
		if strings.TrimSpace(name) != "" {
			return name, nil
		}
	}
	return userID, nil
}

// FindChannel returns the ID of the public, non-archived channel named name.
func (c *Connector) FindChannel(ctx context.Context, name string) (string, error) {
	name = strings.TrimPrefix(name, "#")
	params := &slack.GetConversationsParameters{
		Types:           []string{"public_channel"},
		ExcludeArchived: true,
		Limit:           200,
	}
	for {
		channels, cursor, err := c.api.GetConversationsContext(ctx, params)
		if err != nil {
			return "", fmt.Errorf("slack: list channels: %w", err)
		}
		for _, ch := range channels {
			if ch.Name == name {
				return ch.ID, nil
			}
		}
		if cursor == "" {
			return "", connector.ErrChannelNotFound
		}
		params.Cursor = cursor
	}
}

func (c *Connector) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-c.socket.Events:
			if !ok {
				return
			}
			switch event.Type {
			case socketmode.EventTypeConnected:
				c.logger.Info("slack socket connected")
			case socketmode.EventTypeConnectionError:
				c.logger.Warn("slack socket connection error")
			case socketmode.EventTypeEventsAPI:
				c.handleEventsAPI(ctx, event)
			}
		}
	}
}

func (c *Connector) handleEventsAPI(ctx context.Context, event socketmode.Event) {
	eventsAPIEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}

	if event.Request != nil {
		c.socket.Ack(*event.Request)
	}

	switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		c.handleMessage(ctx, ev)
	case *slackevents.AppHomeOpenedEvent:
		c.handleHomeOpened(ctx, ev)
	}
}

func (c *Connector) handleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	if ev.User != "" && ev.User == c.botUserID {
		return
	}

	inbound := connector.InboundMessage{
		ChannelID:   ev.Channel,
		ChannelType: ev.ChannelType,
		UserID:      ev.User,
		Text:        ev.Text,
		TS:          ev.TimeStamp,
		ThreadTS:    ev.ThreadTimeStamp,
		BotID:       ev.BotID,
		SubType:     ev.SubType,
	}

	c.dispatch(ctx, func(ctx context.Context) {
		if err := c.handler(ctx, inbound); err != nil {
			c.logger.Error("slack inbound handler error",
				"channel", ev.Channel,
				"user", ev.User,
				"error", err,
			)
		}
	})
}

func (c *Connector) handleHomeOpened(ctx context.Context, ev *slackevents.AppHomeOpenedEvent) {
	if ev.Tab != "home" {
		return
	}
	c.dispatch(ctx, func(ctx context.Context) {
		req := slack.PublishViewContextRequest{
			UserID: ev.User,
			View:   HomeView(c.config.Home),
		}
		if _, err := c.api.PublishViewContext(ctx, req); err != nil {
			c.logger.Error("slack publish home view", "user", ev.User, "error", err)
		}
	})
}

// dispatch runs fn in its own goroutine so a slow LLM call never blocks the event loop.
func (c *Connector) dispatch(ctx context.Context, fn func(context.Context)) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("slack handler panic", "panic", r)
			}
		}()
		fn(ctx)
	}()
}
