// Package filing turns a finished intake conversation into a tracker issue.
package filing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/h1v3-io/intake/internal/conversation"
	"github.com/h1v3-io/intake/internal/ledger"
	"github.com/h1v3-io/intake/internal/provider"
	"github.com/h1v3-io/intake/internal/tracker"
	"github.com/h1v3-io/intake/pkg/protocol"
)

// Tracker is the subset of the issue tracker the filer needs.
type Tracker interface {
	TeamByKey(ctx context.Context, key string) (*tracker.Team, error)
	CreateIssue(ctx context.Context, in tracker.IssueInput) (*tracker.Issue, error)
}

// NameResolver looks up a chat user's display name.
type NameResolver interface {
	UserName(ctx context.Context, userID string) (string, error)
}

// Filer extracts a structured request from a conversation and files it.
type Filer struct {
	Provider provider.Provider
	Model    string // empty uses the provider default
	Tracker  Tracker
	TeamKey  string
	Names    NameResolver
	Stats    *conversation.DailyStats
	Ledger   ledger.Store // optional
	BotName  string
	Logger   *slog.Logger

	now func() time.Time
}

// ErrNoUserTurn is returned when a conversation has nothing from the user to file.
var ErrNoUserTurn = errors.New("filing: conversation has no user turn")

// Draft is an extracted and rendered ticket that has not been filed.
type Draft struct {
	Request   protocol.ExtractedRequest
	Requester string
	Body      string
}

// Draft runs extraction and renders the ticket body without touching the tracker.
func (f *Filer) Draft(ctx context.Context, st conversation.State) (Draft, error) {
	return f.draft(ctx, st, f.logger().With("conversation", st.Key))
}

func (f *Filer) draft(ctx context.Context, st conversation.State, logger *slog.Logger) (Draft, error) {
	if protocol.FirstUserText(st.Turns) == "" {
		return Draft{}, ErrNoUserTurn
	}
	requester := f.requesterName(ctx, st.Origin.UserID, logger)
	req, err := f.extract(ctx, st.Turns, requester, logger)
	if err != nil {
		return Draft{}, err
	}
	return Draft{
		Request:   req,
		Requester: requester,
		Body:      RenderBody(req, requester, f.botName(), st.Turns),
	}, nil
}

// File creates an issue for the conversation. It does not touch the
// conversation store; the caller removes the conversation on success.
func (f *Filer) File(ctx context.Context, st conversation.State) (protocol.FiledTicket, error) {
	logger := f.logger().With("conversation", st.Key)

	d, err := f.draft(ctx, st, logger)
	if err != nil {
		f.recordFailure(st, "", err, logger)
		return protocol.FiledTicket{}, err
	}
	req := d.Request

	team, err := f.Tracker.TeamByKey(ctx, f.TeamKey)
	if err != nil {
		f.recordFailure(st, req.Title, err, logger)
		return protocol.FiledTicket{}, fmt.Errorf("filing: resolve team: %w", err)
	}

	issue, err := f.Tracker.CreateIssue(ctx, tracker.IssueInput{
		TeamID:      team.ID,
		Title:       req.Title,
		Description: d.Body,
	})
	if err != nil {
		f.recordFailure(st, req.Title, err, logger)
		return protocol.FiledTicket{}, fmt.Errorf("filing: %w", err)
	}

	filed := protocol.FiledTicket{
		ID:         issue.ID,
		Identifier: issue.Identifier,
		Title:      issue.Title,
		URL:        issue.URL,
		FiledAt:    f.clock(),
	}
	if filed.Title == "" {
		filed.Title = req.Title
	}
	if f.Stats != nil {
		f.Stats.Record(filed)
	}
	if f.Ledger != nil {
		if err := f.Ledger.Record(&ledger.Filing{
			ConversationKey: st.Key,
			UserID:          st.Origin.UserID,
			ChannelID:       st.Origin.ChannelID,
			Status:          ledger.StatusFiled,
			Title:           filed.Title,
			IssueIdentifier: filed.Identifier,
			IssueURL:        filed.URL,
		}); err != nil {
			logger.Warn("ledger record failed", "error", err)
		}
	}

	logger.Info("ticket filed",
		"issue", filed.Identifier,
		"team", team.Key,
		"urgency", req.Urgency,
		"requester_type", req.RequesterType,
	)
	return filed, nil
}

// extract asks the model for the structured request. A model call failure
// is returned; unparseable output falls back to DefaultRequest.
func (f *Filer) extract(ctx context.Context, turns []protocol.Turn, requester string, logger *slog.Logger) (protocol.ExtractedRequest, error) {
	resp, err := f.Provider.Chat(ctx, protocol.ChatRequest{
		Model: f.Model,
		Messages: []protocol.ChatMessage{{
			Role:    protocol.RoleUser,
			Content: buildExtractionPrompt(turns, requester, f.botName()),
		}},
		MaxTokens:   1024,
		Temperature: 0.1,
	})
	if err != nil {
		return protocol.ExtractedRequest{}, fmt.Errorf("filing: extraction: %w", err)
	}

	fallback := DefaultRequest(turns)
	req, err := ParseExtraction(resp.Content)
	if err != nil {
		logger.Warn("extraction output unparseable, using default", "error", err)
		req = fallback
	} else {
		fillBlanks(&req, fallback)
	}
	req.Normalize()
	return req, nil
}

func (f *Filer) requesterName(ctx context.Context, userID string, logger *slog.Logger) string {
	if f.Names == nil || userID == "" {
		return fallbackName(userID)
	}
	name, err := f.Names.UserName(ctx, userID)
	if err != nil || name == "" {
		logger.Warn("user lookup failed", "user", userID, "error", err)
		return fallbackName(userID)
	}
	return name
}

func fallbackName(userID string) string {
	if userID == "" {
		return "Unknown"
	}
	return "<@" + userID + ">"
}

func (f *Filer) recordFailure(st conversation.State, title string, cause error, logger *slog.Logger) {
	if f.Ledger == nil {
		return
	}
	err := f.Ledger.Record(&ledger.Filing{
		ConversationKey: st.Key,
		UserID:          st.Origin.UserID,
		ChannelID:       st.Origin.ChannelID,
		Status:          ledger.StatusFailed,
		Title:           title,
		Error:           cause.Error(),
		Transcript:      st.Turns,
	})
	if err != nil {
		logger.Warn("ledger record failed", "error", err)
	}
}

func (f *Filer) botName() string {
	if f.BotName == "" {
		return "Jarrod"
	}
	return f.BotName
}

func (f *Filer) clock() time.Time {
	if f.now != nil {
		return f.now()
	}
	return time.Now()
}

func (f *Filer) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}
