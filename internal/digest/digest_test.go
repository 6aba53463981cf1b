package digest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/h1v3-io/intake/internal/connector"
	"github.com/h1v3-io/intake/internal/conversation"
	"github.com/h1v3-io/intake/internal/tracker"
	"github.com/h1v3-io/intake/pkg/protocol"
)

func issues(n int, created time.Time) []tracker.Issue {
	out := make([]tracker.Issue, n)
	for i := range out {
		out[i] = tracker.Issue{Identifier: "KDE-" + string(rune('1'+i)), CreatedAt: created.Add(time.Duration(i) * time.Hour)}
	}
	return out
}

func TestCompose_Empty(t *testing.T) {
	got := Compose(Input{Date: "2026-10-16", Triage: issues(5, time.Time{})})

	if !strings.Contains(got, "New requests today (0):") {
		t.Errorf("missing count line:\n%s", got)
	}
	if !strings.Contains(got, "(none)") {
		t.Errorf("missing (none):\n%s", got)
	}
	if !strings.Contains(got, "Triage backlog: 5 items") {
		t.Errorf("missing backlog line:\n%s", got)
	}
	if strings.Contains(got, "⚠️") {
		t.Errorf("unexpected warning at threshold:\n%s", got)
	}
	if !strings.Contains(got, "Friday, October 16") {
		t.Errorf("missing date header:\n%s", got)
	}
}

func TestCompose_BacklogWarning(t *testing.T) {
	got := Compose(Input{Date: "2026-10-16", Triage: issues(6, time.Time{})})
	if !strings.Contains(got, "⚠️ Triage backlog is over 5") {
		t.Errorf("missing warning:\n%s", got)
	}
}

func TestCompose_ListsFiled(t *testing.T) {
	got := Compose(Input{
		Date: "2026-10-16",
		Filed: []protocol.FiledTicket{
			{Identifier: "KDE-12", Title: "CSV export"},
			{Identifier: "KDE-13", Title: "Dark mode"},
		},
	})

	for _, want := range []string{"New requests today (2):", "• KDE-12: CSV export", "• KDE-13: Dark mode", "Triage backlog: 0 items"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "(none)") {
		t.Errorf("unexpected (none):\n%s", got)
	}
}

func TestCompose_OldestTriage(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	got := Compose(Input{Date: "2026-10-16", Triage: issues(1, now.Add(-72*time.Hour)), Now: now})

	if !strings.Contains(got, "Triage backlog: 1 item\n") {
		t.Errorf("singular backlog line missing:\n%s", got)
	}
	if !strings.Contains(got, "Oldest in triage: KDE-1, opened 3 days ago") {
		t.Errorf("missing oldest line:\n%s", got)
	}
}

type fakeTracker struct {
	issues []tracker.Issue
	err    error
}

func (f *fakeTracker) TriageIssues(_ context.Context, teamKey string) ([]tracker.Issue, error) {
	return f.issues, f.err
}

type fakeChat struct {
	channels map[string]string
	sent     []connector.OutboundMessage
}

func (f *fakeChat) FindChannel(_ context.Context, name string) (string, error) {
	if id, ok := f.channels[name]; ok {
		return id, nil
	}
	return "", connector.ErrChannelNotFound
}

func (f *fakeChat) Send(_ context.Context, msg connector.OutboundMessage) error {
	f.sent = append(f.sent, msg)
	return nil
}

func newJob(tr *fakeTracker, chat *fakeChat) *Job {
	now := func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) }
	stats := conversation.NewDailyStats(time.UTC, now)
	stats.Record(protocol.FiledTicket{Identifier: "KDE-7", Title: "Bulk edit"})
	return &Job{
		Tracker: tr,
		Stats:   stats,
		Chat:    chat,
		TeamKey: "KDE",
		Channel: "well-do-it-live",
		now:     now,
	}
}

func TestRun_Posts(t *testing.T) {
	chat := &fakeChat{channels: map[string]string{"well-do-it-live": "C9"}}
	job := newJob(&fakeTracker{issues: issues(2, time.Time{})}, chat)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(chat.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(chat.sent))
	}
	msg := chat.sent[0]
	if msg.ChannelID != "C9" || msg.ThreadTS != "" {
		t.Errorf("msg = %+v", msg)
	}
	if !strings.Contains(msg.Text, "• KDE-7: Bulk edit") || !strings.Contains(msg.Text, "Triage backlog: 2 items") {
		t.Errorf("text = %q", msg.Text)
	}
}

func TestRun_ChannelMissing(t *testing.T) {
	chat := &fakeChat{}
	job := newJob(&fakeTracker{}, chat)

	err := job.Run(context.Background())
	if !errors.Is(err, connector.ErrChannelNotFound) {
		t.Errorf("err = %v, want ErrChannelNotFound", err)
	}
	if len(chat.sent) != 0 {
		t.Errorf("sent = %d, want 0", len(chat.sent))
	}
}

func TestRun_TriageFailure(t *testing.T) {
	chat := &fakeChat{channels: map[string]string{"well-do-it-live": "C9"}}
	job := newJob(&fakeTracker{err: errors.New("linear down")}, chat)

	if err := job.Run(context.Background()); err == nil {
		t.Error("expected error")
	}
	if len(chat.sent) != 0 {
		t.Errorf("sent = %d, want 0", len(chat.sent))
	}
}
