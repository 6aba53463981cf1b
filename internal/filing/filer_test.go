package filing

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/h1v3-io/intake/internal/conversation"
	"github.com/h1v3-io/intake/internal/ledger"
	"github.com/h1v3-io/intake/internal/tracker"
	"github.com/h1v3-io/intake/pkg/protocol"
)

type stubProvider struct {
	content string
	err     error
	calls   []protocol.ChatRequest
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Chat(_ context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	return &protocol.ChatResponse{Content: s.content}, nil
}

type fakeTracker struct {
	teams   map[string]tracker.Team
	created []tracker.IssueInput
	err     error
}

func (f *fakeTracker) TeamByKey(_ context.Context, key string) (*tracker.Team, error) {
	t, ok := f.teams[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", tracker.ErrTeamNotFound, key)
	}
	return &t, nil
}

func (f *fakeTracker) CreateIssue(_ context.Context, in tracker.IssueInput) (*tracker.Issue, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, in)
	n := len(f.created)
	return &tracker.Issue{
		ID:         fmt.Sprintf("issue-%d", n),
		Identifier: fmt.Sprintf("KDE-%d", n),
		Title:      in.Title,
		URL:        fmt.Sprintf("https://linear.app/koddi/issue/KDE-%d", n),
	}, nil
}

type fakeNames map[string]string

func (f fakeNames) UserName(_ context.Context, id string) (string, error) {
	if n, ok := f[id]; ok {
		return n, nil
	}
	return "", errors.New("user_not_found")
}

func testState() conversation.State {
	return conversation.State{
		Key:    "C001:1700000000.000100",
		Origin: conversation.Origin{UserID: "U1", ChannelID: "C001", ThreadTS: "1700000000.000100"},
		Turns: []protocol.Turn{
			{Role: protocol.RoleUser, Text: "can we get CSV export"},
			{Role: protocol.RoleAssistant, Text: "Oh interesting, what's driving this?"},
			{Role: protocol.RoleUser, Text: "customers keep asking, it's blocking them"},
			{Role: protocol.RoleAssistant, Text: "Got it, I'll get this over to the product team 🙌"},
		},
	}
}

func newTestFiler(p *stubProvider, tr *fakeTracker) (*Filer, *conversation.DailyStats) {
	stats := conversation.NewDailyStats(time.UTC, nil)
	return &Filer{
		Provider: p,
		Tracker:  tr,
		TeamKey:  "KDE",
		Names:    fakeNames{"U1": "Alice"},
		Stats:    stats,
		BotName:  "Jarrod",
	}, stats
}

func defaultTracker() *fakeTracker {
	return &fakeTracker{teams: map[string]tracker.Team{"KDE": {ID: "team-1", Key: "KDE"}}}
}

func TestFile_Success(t *testing.T) {
	p := &stubProvider{content: `Here it is: {"title":"CSV export","description":"Export reports as CSV","problem":"Customers are blocked","requester_type":"customer","urgency":"blocking"}`}
	tr := defaultTracker()
	f, stats := newTestFiler(p, tr)

	filed, err := f.File(context.Background(), testState())
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if filed.Identifier != "KDE-1" {
		t.Errorf("identifier = %q", filed.Identifier)
	}

	if len(tr.created) != 1 {
		t.Fatalf("created = %d", len(tr.created))
	}
	in := tr.created[0]
	if in.TeamID != "team-1" || in.Title != "CSV export" {
		t.Errorf("issue input = %+v", in)
	}
	if !strings.Contains(in.Description, "**Requested by:** Alice (Customer request)") {
		t.Errorf("description missing requester line:\n%s", in.Description)
	}
	if !strings.Contains(in.Description, "🔴 Blocking") {
		t.Errorf("description missing urgency:\n%s", in.Description)
	}

	// Extraction is a single user turn carrying the transcript.
	if len(p.calls) != 1 || len(p.calls[0].Messages) != 1 || p.calls[0].Messages[0].Role != protocol.RoleUser {
		t.Fatalf("extraction request = %+v", p.calls)
	}
	if !strings.Contains(p.calls[0].Messages[0].Content, "Alice: can we get CSV export") {
		t.Error("extraction prompt missing transcript")
	}

	_, today := stats.Today()
	if len(today) != 1 || today[0].Identifier != "KDE-1" {
		t.Errorf("daily stats = %+v", today)
	}
}

func TestFile_MalformedJSONFallsBack(t *testing.T) {
	p := &stubProvider{content: "Sorry, I can't do that."}
	tr := defaultTracker()
	f, _ := newTestFiler(p, tr)

	if _, err := f.File(context.Background(), testState()); err != nil {
		t.Fatalf("File: %v", err)
	}
	in := tr.created[0]
	if in.Title != "can we get CSV export" {
		t.Errorf("title = %q", in.Title)
	}
	if !strings.Contains(in.Description, "## Description\ncan we get CSV export") {
		t.Errorf("description = %s", in.Description)
	}
	if !strings.Contains(in.Description, "(Unknown)") || !strings.Contains(in.Description, "🟢 Nice to have") {
		t.Errorf("default labels missing:\n%s", in.Description)
	}
}

func TestFile_TeamNotFound(t *testing.T) {
	p := &stubProvider{content: `{"title":"x","description":"d","problem":"p","requester_type":"internal","urgency":"important"}`}
	tr := &fakeTracker{teams: map[string]tracker.Team{}}
	f, stats := newTestFiler(p, tr)

	_, err := f.File(context.Background(), testState())
	if !errors.Is(err, tracker.ErrTeamNotFound) {
		t.Fatalf("err = %v, want ErrTeamNotFound", err)
	}
	if len(tr.created) != 0 {
		t.Error("no issue should be created")
	}
	if _, today := stats.Today(); len(today) != 0 {
		t.Errorf("stats recorded a failed filing: %+v", today)
	}
}

func TestFile_ExtractionCallFails(t *testing.T) {
	p := &stubProvider{err: errors.New("overloaded")}
	tr := defaultTracker()
	f, _ := newTestFiler(p, tr)

	_, err := f.File(context.Background(), testState())
	if err == nil || !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("err = %v", err)
	}
	if len(tr.created) != 0 {
		t.Error("no issue should be created")
	}
}

func TestFile_NameLookupFailureUsesMention(t *testing.T) {
	p := &stubProvider{content: "not json"}
	tr := defaultTracker()
	f, _ := newTestFiler(p, tr)
	f.Names = fakeNames{}

	if _, err := f.File(context.Background(), testState()); err != nil {
		t.Fatalf("File: %v", err)
	}
	if !strings.Contains(tr.created[0].Description, "**Requested by:** <@U1>") {
		t.Errorf("description = %s", tr.created[0].Description)
	}
}

func TestFile_LedgerRecordsOutcomes(t *testing.T) {
	store, err := ledger.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	tr := defaultTracker()
	f, _ := newTestFiler(&stubProvider{content: `{"title":"CSV export"}`}, tr)
	f.Ledger = store

	if _, err := f.File(context.Background(), testState()); err != nil {
		t.Fatalf("File: %v", err)
	}

	tr.err = errors.New("linear down")
	if _, err := f.File(context.Background(), testState()); err == nil {
		t.Fatal("expected error when issue creation fails")
	}

	filed := ledger.StatusFiled
	failed := ledger.StatusFailed
	if n, _ := store.Count(ledger.Filter{Status: &filed}); n != 1 {
		t.Errorf("filed count = %d", n)
	}
	rows, err := store.List(ledger.Filter{Status: &failed})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("failed rows = %d", len(rows))
	}
	if len(rows[0].Transcript) != 4 || !strings.Contains(rows[0].Error, "linear down") {
		t.Errorf("failed row = %+v", rows[0])
	}
}

func TestDraft_DoesNotFile(t *testing.T) {
	p := &stubProvider{content: `{"title":"CSV export","description":"d","problem":"p","requester_type":"internal","urgency":"important"}`}
	tr := defaultTracker()
	f, stats := newTestFiler(p, tr)

	d, err := f.Draft(context.Background(), testState())
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if d.Request.Title != "CSV export" || d.Requester != "Alice" {
		t.Errorf("draft = %+v", d)
	}
	if !strings.Contains(d.Body, "🟡 Important") {
		t.Errorf("body missing urgency:\n%s", d.Body)
	}
	if len(tr.created) != 0 {
		t.Error("Draft must not create issues")
	}
	if _, today := stats.Today(); len(today) != 0 {
		t.Error("Draft must not touch stats")
	}
}

func TestFile_NoUserTurn(t *testing.T) {
	p := &stubProvider{content: `{}`}
	f, _ := newTestFiler(p, defaultTracker())

	st := testState()
	st.Turns = []protocol.Turn{{Role: protocol.RoleAssistant, Text: "hello?"}}
	if _, err := f.File(context.Background(), st); !errors.Is(err, ErrNoUserTurn) {
		t.Errorf("err = %v, want ErrNoUserTurn", err)
	}
	if len(p.calls) != 0 {
		t.Error("no extraction call expected")
	}
}
