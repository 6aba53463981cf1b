package filing

import (
	"fmt"
	"strings"

	"github.com/h1v3-io/intake/pkg/protocol"
)

var requesterLabels = map[protocol.RequesterType]string{
	protocol.RequesterInternal: "Internal team",
	protocol.RequesterCustomer: "Customer request",
	protocol.RequesterUnknown:  "Unknown",
}

var urgencyLabels = map[protocol.Urgency]string{
	protocol.UrgencyNiceToHave: "🟢 Nice to have",
	protocol.UrgencyImportant:  "🟡 Important",
	protocol.UrgencyBlocking:   "🔴 Blocking",
	protocol.UrgencyUnknown:    "⚪ Unknown",
}

// RenderBody formats the Linear issue description. The transcript goes in a
// collapsible "+++" section.
func RenderBody(req protocol.ExtractedRequest, requester, botName string, turns []protocol.Turn) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Description\n%s\n\n", req.Description)
	fmt.Fprintf(&b, "## Problem\n%s\n\n", req.Problem)
	fmt.Fprintf(&b, "**Requested by:** %s (%s)\n", requester, label(requesterLabels, req.RequesterType))
	fmt.Fprintf(&b, "**Urgency:** %s\n\n", label(urgencyLabels, req.Urgency))

	b.WriteString("+++ Conversation transcript\n\n")
	b.WriteString(transcript(turns, requester, botName, "**%s:** %s", "\n\n"))
	b.WriteString("\n\n+++\n\n")

	fmt.Fprintf(&b, "---\n_Submitted via Slack by %s_\n", botName)
	return b.String()
}

func label[K comparable](labels map[K]string, k K) string {
	if l, ok := labels[k]; ok {
		return l
	}
	return fmt.Sprint(k)
}
