package filing

import (
	"strings"
	"testing"

	"github.com/h1v3-io/intake/pkg/protocol"
)

func TestFindJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, true},
		{"prose around", "Here you go:\n{\"a\":1}\nHope that helps!", `{"a":1}`, true},
		{"nested", `x {"a":{"b":2}} y`, `{"a":{"b":2}}`, true},
		{"brace in string", `{"title":"use {curly} braces"} trailing }`, `{"title":"use {curly} braces"}`, true},
		{"escaped quote", `{"t":"say \"hi\" }"}`, `{"t":"say \"hi\" }"}`, true},
		{"first of two", `{"a":1} and {"b":2}`, `{"a":1}`, true},
		{"code fence", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"prose braces first", `Sure {happy to help}! {"a":1}`, `{"a":1}`, true},
		{"stray quote in prose", `ok {he said "yes} then {"a":1}`, `{"a":1}`, true},
		{"none", "no json here", "", false},
		{"unbalanced", `{"a":1`, "", false},
	}
	for _, tt := range tests {
		got, ok := findJSONObject(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("%s: findJSONObject = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseExtraction_EmbeddedInProse(t *testing.T) {
	raw := `Sure! Here's the extracted request:

{"title":"CSV export for reports","description":"Export campaign reports as CSV.","problem":"Customers copy data by hand.","requester_type":"customer","urgency":"blocking"}

Let me know if you need anything else {or not}.`

	req, err := ParseExtraction(raw)
	if err != nil {
		t.Fatalf("ParseExtraction: %v", err)
	}
	if req.Title != "CSV export for reports" {
		t.Errorf("title = %q", req.Title)
	}
	if req.RequesterType != protocol.RequesterCustomer {
		t.Errorf("requester_type = %q", req.RequesterType)
	}
	if req.Urgency != protocol.UrgencyBlocking {
		t.Errorf("urgency = %q", req.Urgency)
	}
}

func TestParseExtraction_BracesInProseBeforeObject(t *testing.T) {
	raw := "Sure {happy to help}! Here it is:\n" +
		`{"title":"CSV export","description":"Export reports as CSV.","problem":"Manual copying.","requester_type":"internal","urgency":"important"}`

	req, err := ParseExtraction(raw)
	if err != nil {
		t.Fatalf("ParseExtraction: %v", err)
	}
	if req.Title != "CSV export" {
		t.Errorf("title = %q, want %q", req.Title, "CSV export")
	}
	if req.Urgency != protocol.UrgencyImportant {
		t.Errorf("urgency = %q", req.Urgency)
	}
}

func TestParseExtraction_Failures(t *testing.T) {
	for _, raw := range []string{
		"I couldn't extract anything, sorry.",
		`{"title": "missing close"`,
		`{"title": 'single quotes'}`,
	} {
		if _, err := ParseExtraction(raw); err == nil {
			t.Errorf("ParseExtraction(%q) should fail", raw)
		}
	}
}

func TestDefaultRequest(t *testing.T) {
	turns := []protocol.Turn{
		{Role: protocol.RoleUser, Text: "can we get CSV export"},
		{Role: protocol.RoleAssistant, Text: "What's driving this?"},
		{Role: protocol.RoleUser, Text: "customers keep asking"},
	}
	req := DefaultRequest(turns)
	if req.Description != "can we get CSV export" {
		t.Errorf("description = %q", req.Description)
	}
	if req.Title != "can we get CSV export" {
		t.Errorf("title = %q", req.Title)
	}
	if req.RequesterType != protocol.RequesterUnknown {
		t.Errorf("requester_type = %q", req.RequesterType)
	}
	if req.Urgency != protocol.UrgencyNiceToHave {
		t.Errorf("urgency = %q", req.Urgency)
	}
}

func TestDefaultRequest_LongFirstTurn(t *testing.T) {
	long := strings.Repeat("word ", 40)
	req := DefaultRequest([]protocol.Turn{{Role: protocol.RoleUser, Text: long}})
	if n := len([]rune(req.Title)); n > protocol.MaxTitleLength {
		t.Errorf("title length = %d", n)
	}
	if req.Description != strings.TrimSpace(long) {
		t.Error("description should keep the full first turn")
	}
}

func TestDefaultRequest_NoUserTurn(t *testing.T) {
	req := DefaultRequest(nil)
	if req.Title == "" {
		t.Error("expected a placeholder title")
	}
}

func TestFillBlanks(t *testing.T) {
	req := protocol.ExtractedRequest{Title: "Dark mode"}
	fillBlanks(&req, protocol.ExtractedRequest{Title: "x", Description: "d", Problem: "p"})
	if req.Title != "Dark mode" || req.Description != "d" || req.Problem != "p" {
		t.Errorf("req = %+v", req)
	}
	if req.RequesterType != protocol.RequesterUnknown || req.Urgency != protocol.UrgencyUnknown {
		t.Errorf("enums = %q / %q", req.RequesterType, req.Urgency)
	}
}

func TestBuildExtractionPrompt(t *testing.T) {
	prompt := buildExtractionPrompt([]protocol.Turn{
		{Role: protocol.RoleUser, Text: "can we get CSV export"},
		{Role: protocol.RoleAssistant, Text: "Why?"},
	}, "Alice", "Jarrod")

	for _, want := range []string{
		"Alice: can we get CSV export",
		"Jarrod: Why?",
		`"title"`, `"description"`, `"problem"`, `"requester_type"`, `"urgency"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
