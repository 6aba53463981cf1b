package filing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/h1v3-io/intake/pkg/protocol"
)

const extractionPrompt = `Extract a feature request from this Slack conversation.

Conversation:
%s

Return ONLY a JSON object with exactly these five fields and nothing else:
{
  "title": "short summary of the feature, under 80 characters",
  "description": "what they want, 1-3 sentences",
  "problem": "the problem this solves or why they need it",
  "requester_type": "internal" or "customer" or "unknown",
  "urgency": "nice-to-have" or "important" or "blocking" or "unknown"
}`

// buildExtractionPrompt renders the single user turn sent for extraction.
func buildExtractionPrompt(turns []protocol.Turn, userLabel, botLabel string) string {
	return fmt.Sprintf(extractionPrompt, transcript(turns, userLabel, botLabel, "%s: %s", "\n"))
}

func transcript(turns []protocol.Turn, userLabel, botLabel, lineFormat, sep string) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		who := userLabel
		if t.Role == protocol.RoleAssistant {
			who = botLabel
		}
		lines = append(lines, fmt.Sprintf(lineFormat, who, t.Text))
	}
	return strings.Join(lines, sep)
}

// jsonCandidates returns the balanced {...} substring starting at each
// opening brace of s, in order. Braces inside JSON strings are ignored.
func jsonCandidates(s string) []string {
	var out []string
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		if end, ok := matchBrace(s, i); ok {
			out = append(out, s[i:end+1])
		}
	}
	return out
}

// findJSONObject returns the first balanced {...} substring of s that
// decodes as a JSON object.
func findJSONObject(s string) (string, bool) {
	for _, c := range jsonCandidates(s) {
		var v map[string]json.RawMessage
		if json.Unmarshal([]byte(c), &v) == nil {
			return c, true
		}
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at s[start].
func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// ParseExtraction pulls the extracted request out of raw model output. The
// first embedded object that decodes into a request wins.
func ParseExtraction(raw string) (protocol.ExtractedRequest, error) {
	candidates := jsonCandidates(raw)
	if len(candidates) == 0 {
		return protocol.ExtractedRequest{}, fmt.Errorf("filing: no JSON object in model output")
	}
	var firstErr error
	for _, c := range candidates {
		var req protocol.ExtractedRequest
		err := json.Unmarshal([]byte(c), &req)
		if err == nil {
			return req, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return protocol.ExtractedRequest{}, fmt.Errorf("filing: invalid JSON from model: %w", firstErr)
}

// DefaultRequest is the payload used when extraction output cannot be parsed.
func DefaultRequest(turns []protocol.Turn) protocol.ExtractedRequest {
	first := strings.TrimSpace(protocol.FirstUserText(turns))
	title := first
	if title == "" {
		title = "Feature request from Slack"
	}
	return protocol.ExtractedRequest{
		Title:         protocol.Truncate(title, protocol.MaxTitleLength),
		Description:   first,
		Problem:       "Unknown",
		RequesterType: protocol.RequesterUnknown,
		Urgency:       protocol.UrgencyNiceToHave,
	}
}

// fillBlanks copies fallback values into any empty field of req.
func fillBlanks(req *protocol.ExtractedRequest, fallback protocol.ExtractedRequest) {
	if strings.TrimSpace(req.Title) == "" {
		req.Title = fallback.Title
	}
	if strings.TrimSpace(req.Description) == "" {
		req.Description = fallback.Description
	}
	if strings.TrimSpace(req.Problem) == "" {
		req.Problem = fallback.Problem
	}
	if req.RequesterType == "" {
		req.RequesterType = protocol.RequesterUnknown
	}
	if req.Urgency == "" {
		req.Urgency = protocol.UrgencyUnknown
	}
}
