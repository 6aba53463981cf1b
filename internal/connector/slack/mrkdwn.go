package slackconn

import (
	"fmt"
	"strings"
)

// MarkdownToMrkdwn converts the Markdown an LLM tends to produce into Slack's mrkdwn.
// Fenced code blocks pass through untouched.
func MarkdownToMrkdwn(md string) string {
	lines := strings.Split(md, "\n")
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		lines[i] = convertLine(line)
	}
	return strings.Join(lines, "\n")
}

func convertLine(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	indent := line[:len(line)-len(trimmed)]

	if hashes := len(trimmed) - len(strings.TrimLeft(trimmed, "#")); hashes > 0 && hashes <= 6 && strings.HasPrefix(trimmed[hashes:], " ") {
		heading := strings.ReplaceAll(strings.TrimSpace(trimmed[hashes:]), "*", "")
		return indent + "*" + convertLinks(heading) + "*"
	}
	if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
		trimmed = "• " + trimmed[2:]
	}

	out := convertEmphasis(trimmed)
	out = strings.ReplaceAll(out, "~~", "~")
	return indent + convertLinks(out)
}

// convertEmphasis maps **bold** to *bold* and *italic* to _italic_, skipping inline code.
func convertEmphasis(s string) string {
	var b strings.Builder
	inCode := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '`':
			inCode = !inCode
			b.WriteByte(ch)
		case ch == '*' && !inCode:
			if i+1 < len(s) && s[i+1] == '*' {
				b.WriteByte('*')
				i++
			} else {
				b.WriteByte('_')
			}
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// convertLinks converts [text](url) to <url|text>.
func convertLinks(s string) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if s[i] != '[' {
			b.WriteByte(s[i])
			i++
			continue
		}
		closeB := strings.Index(s[i:], "](")
		if closeB == -1 {
			b.WriteByte(s[i])
			i++
			continue
		}
		closeB += i
		closeP := strings.IndexByte(s[closeB:], ')')
		if closeP == -1 {
			b.WriteByte(s[i])
			i++
			continue
		}
		closeP += closeB

		fmt.Fprintf(&b, "<%s|%s>", s[closeB+2:closeP], s[i+1:closeB])
		i = closeP + 1
	}
	return b.String()
}
