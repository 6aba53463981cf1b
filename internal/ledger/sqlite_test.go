package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/h1v3-io/intake/pkg/protocol"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	s := newTestStore(t)

	f := &Filing{
		ConversationKey: "C001:1.0",
		UserID:          "U1",
		ChannelID:       "C001",
		Status:          StatusFiled,
		Title:           "CSV export",
		IssueIdentifier: "KDE-42",
		IssueURL:        "https://linear.app/koddi/issue/KDE-42",
	}
	if err := s.Record(f); err != nil {
		t.Fatalf("record: %v", err)
	}
	if f.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if f.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be assigned")
	}

	got, err := s.List(Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 filing, got %d", len(got))
	}
	if got[0].IssueIdentifier != "KDE-42" || got[0].Status != StatusFiled {
		t.Errorf("filing = %+v", got[0])
	}
	if got[0].Transcript == nil {
		t.Error("transcript should be an empty slice, not nil")
	}
}

func TestRecord_FailedKeepsTranscript(t *testing.T) {
	s := newTestStore(t)

	f := &Filing{
		ConversationKey: "D123:1.0",
		Status:          StatusFailed,
		Error:           "dialogue: anthropic: quota exceeded",
		Transcript: []protocol.Turn{
			{Role: protocol.RoleUser, Text: "can we get CSV export"},
			{Role: protocol.RoleAssistant, Text: "Sending this to the team!"},
		},
	}
	if err := s.Record(f); err != nil {
		t.Fatalf("record: %v", err)
	}

	failed := StatusFailed
	got, err := s.List(Filter{Status: &failed})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 failed filing, got %d", len(got))
	}
	if len(got[0].Transcript) != 2 || got[0].Transcript[0].Text != "can we get CSV export" {
		t.Errorf("transcript = %+v", got[0].Transcript)
	}
	if got[0].Error == "" {
		t.Error("expected error text to be stored")
	}
}

func TestListOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	for i, title := range []string{"first", "second", "third"} {
		s.Record(&Filing{
			ConversationKey: "C001:1.0",
			Status:          StatusFiled,
			Title:           title,
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		})
	}

	got, err := s.List(Filter{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2, got %d", len(got))
	}
	if got[0].Title != "third" || got[1].Title != "second" {
		t.Errorf("order = %q, %q", got[0].Title, got[1].Title)
	}
}

func TestCount(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	s.Record(&Filing{ConversationKey: "a", Status: StatusFiled, UserID: "U1", CreatedAt: base})
	s.Record(&Filing{ConversationKey: "b", Status: StatusFailed, UserID: "U1", CreatedAt: base.Add(time.Hour)})
	s.Record(&Filing{ConversationKey: "c", Status: StatusFiled, UserID: "U2", CreatedAt: base.Add(2 * time.Hour)})

	filed := StatusFiled
	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 3},
		{"filed", Filter{Status: &filed}, 2},
		{"user", Filter{UserID: "U1"}, 2},
		{"since", Filter{Since: base.Add(30 * time.Minute)}, 2},
	}
	for _, tt := range tests {
		n, err := s.Count(tt.filter)
		if err != nil {
			t.Fatalf("%s: count: %v", tt.name, err)
		}
		if n != tt.want {
			t.Errorf("%s: count = %d, want %d", tt.name, n, tt.want)
		}
	}
}
