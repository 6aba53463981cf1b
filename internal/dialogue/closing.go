package dialogue

import "strings"

// ClosingPhrases mark an assistant reply that wraps up the conversation.
var ClosingPhrases = []string{
	"sending this to",
	"get this over to",
	"logged and heading",
	"this is logged",
}

// IsClosing reports whether text contains any closing phrase, ignoring case.
func IsClosing(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range ClosingPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
