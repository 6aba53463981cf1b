package protocol

import "time"

// RequesterType classifies who a feature request is for.
type RequesterType string

const (
	RequesterInternal RequesterType = "internal"
	RequesterCustomer RequesterType = "customer"
	RequesterUnknown  RequesterType = "unknown"
)

// Urgency is how pressing the requester says the feature is.
type Urgency string

const (
	UrgencyNiceToHave Urgency = "nice-to-have"
	UrgencyImportant  Urgency = "important"
	UrgencyBlocking   Urgency = "blocking"
	UrgencyUnknown    Urgency = "unknown"
)

// MaxTitleLength bounds the issue title, in runes.
const MaxTitleLength = 80

// ExtractedRequest is the structured form of a finished intake conversation.
type ExtractedRequest struct {
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Problem       string        `json:"problem"`
	RequesterType RequesterType `json:"requester_type"`
	Urgency       Urgency       `json:"urgency"`
}

// Normalize clamps the title and maps unrecognised enum values to unknown.
func (r *ExtractedRequest) Normalize() {
	r.Title = Truncate(r.Title, MaxTitleLength)
	switch r.RequesterType {
	case RequesterInternal, RequesterCustomer, RequesterUnknown:
	default:
		r.RequesterType = RequesterUnknown
	}
	switch r.Urgency {
	case UrgencyNiceToHave, UrgencyImportant, UrgencyBlocking, UrgencyUnknown:
	default:
		r.Urgency = UrgencyUnknown
	}
}

// FiledTicket identifies an issue created in the tracker.
type FiledTicket struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"` // e.g. KDE-123
	Title      string    `json:"title"`
	URL        string    `json:"url,omitempty"`
	FiledAt    time.Time `json:"filed_at"`
}

// Truncate shortens s to at most max runes, ending in "..." when cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
