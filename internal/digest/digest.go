// Package digest composes and posts the daily feature request summary.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/h1v3-io/intake/internal/connector"
	"github.com/h1v3-io/intake/internal/conversation"
	"github.com/h1v3-io/intake/internal/tracker"
	"github.com/h1v3-io/intake/pkg/protocol"
)

// BacklogWarningThreshold is the triage size above which the digest carries a warning.
const BacklogWarningThreshold = 5

// Input is everything Compose needs.
type Input struct {
	Date   string // YYYY-MM-DD
	Filed  []protocol.FiledTicket
	Triage []tracker.Issue
	Now    time.Time
}

// Compose renders the digest text. It has no side effects.
func Compose(in Input) string {
	var b strings.Builder

	header := in.Date
	if d, err := time.Parse("2006-01-02", in.Date); err == nil {
		header = d.Format("Monday, January 2")
	}
	fmt.Fprintf(&b, "📋 *Feature request digest for %s*\n\n", header)

	fmt.Fprintf(&b, "New requests today (%d):\n", len(in.Filed))
	if len(in.Filed) == 0 {
		b.WriteString("(none)\n")
	}
	for _, t := range in.Filed {
		fmt.Fprintf(&b, "• %s: %s\n", t.Identifier, t.Title)
	}

	fmt.Fprintf(&b, "\nTriage backlog: %d %s\n", len(in.Triage), plural(len(in.Triage), "item", "items"))
	if oldest, ok := oldestIssue(in.Triage); ok && !in.Now.IsZero() {
		fmt.Fprintf(&b, "Oldest in triage: %s, opened %s\n", oldest.Identifier, humanize.RelTime(oldest.CreatedAt, in.Now, "ago", "from now"))
	}
	if len(in.Triage) > BacklogWarningThreshold {
		fmt.Fprintf(&b, "⚠️ Triage backlog is over %d. Time for a triage pass.\n", BacklogWarningThreshold)
	}

	return strings.TrimRight(b.String(), "\n")
}

func oldestIssue(issues []tracker.Issue) (tracker.Issue, bool) {
	var oldest tracker.Issue
	found := false
	for _, is := range issues {
		if is.CreatedAt.IsZero() {
			continue
		}
		if !found || is.CreatedAt.Before(oldest.CreatedAt) {
			oldest, found = is, true
		}
	}
	return oldest, found
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// Tracker lists the team's triage queue.
type Tracker interface {
	TriageIssues(ctx context.Context, teamKey string) ([]tracker.Issue, error)
}

// Chat finds the summary channel and posts to it.
type Chat interface {
	FindChannel(ctx context.Context, name string) (string, error)
	Send(ctx context.Context, msg connector.OutboundMessage) error
}

// Job posts the digest to the summary channel.
type Job struct {
	Tracker Tracker
	Stats   *conversation.DailyStats
	Chat    Chat
	TeamKey string
	Channel string // channel name, without '#'
	Logger  *slog.Logger

	now func() time.Time
}

// Run composes and posts one digest. Failures are logged and returned; nothing is retried.
func (j *Job) Run(ctx context.Context) error {
	logger := j.logger().With("team", j.TeamKey, "channel", j.Channel)

	triage, err := j.Tracker.TriageIssues(ctx, j.TeamKey)
	if err != nil {
		logger.Error("digest skipped: triage query failed", "error", err)
		return fmt.Errorf("digest: triage issues: %w", err)
	}

	date, filed := j.Stats.Today()
	text := Compose(Input{Date: date, Filed: filed, Triage: triage, Now: j.clock()})

	channelID, err := j.Chat.FindChannel(ctx, j.Channel)
	if err != nil {
		if errors.Is(err, connector.ErrChannelNotFound) {
			logger.Warn("digest skipped: summary channel not found")
		} else {
			logger.Error("digest skipped: channel lookup failed", "error", err)
		}
		return fmt.Errorf("digest: find channel %q: %w", j.Channel, err)
	}

	if err := j.Chat.Send(ctx, connector.OutboundMessage{ChannelID: channelID, Text: text}); err != nil {
		logger.Error("digest post failed", "error", err)
		return fmt.Errorf("digest: post: %w", err)
	}

	logger.Info("digest posted", "new_requests", len(filed), "triage", len(triage))
	return nil
}

func (j *Job) clock() time.Time {
	if j.now != nil {
		return j.now()
	}
	return time.Now()
}

func (j *Job) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
