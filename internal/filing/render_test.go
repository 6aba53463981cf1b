package filing

import (
	"strings"
	"testing"

	"github.com/h1v3-io/intake/pkg/protocol"
)

func TestRenderBody(t *testing.T) {
	req := protocol.ExtractedRequest{
		Title:         "CSV export",
		Description:   "Export reports as CSV.",
		Problem:       "Customers copy data by hand.",
		RequesterType: protocol.RequesterCustomer,
		Urgency:       protocol.UrgencyBlocking,
	}
	turns := []protocol.Turn{
		{Role: protocol.RoleUser, Text: "can we get CSV export"},
		{Role: protocol.RoleAssistant, Text: "Got it, sending this to the team!"},
	}

	body := RenderBody(req, "Alice", "Jarrod", turns)

	for _, want := range []string{
		"## Description\nExport reports as CSV.",
		"## Problem\nCustomers copy data by hand.",
		"**Requested by:** Alice (Customer request)",
		"**Urgency:** 🔴 Blocking",
		"+++ Conversation transcript",
		"**Alice:** can we get CSV export",
		"**Jarrod:** Got it, sending this to the team!",
		"_Submitted via Slack by Jarrod_",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q\n---\n%s", want, body)
		}
	}

	desc := strings.Index(body, "## Description")
	prob := strings.Index(body, "## Problem")
	tr := strings.Index(body, "+++ Conversation transcript")
	if !(desc < prob && prob < tr) {
		t.Error("sections out of order")
	}
	if strings.Count(body, "+++") != 2 {
		t.Errorf("expected an opening and closing +++ marker")
	}
}

func TestRenderBody_UnknownLabels(t *testing.T) {
	body := RenderBody(protocol.ExtractedRequest{
		RequesterType: protocol.RequesterUnknown,
		Urgency:       protocol.UrgencyUnknown,
	}, "Bob", "Jarrod", nil)
	if !strings.Contains(body, "(Unknown)") || !strings.Contains(body, "⚪ Unknown") {
		t.Errorf("body = %s", body)
	}
}
