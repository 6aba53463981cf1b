// Package ledger keeps an audit trail of ticket filing attempts. Failed
// attempts carry the transcript so a lost request can be recovered by hand.
package ledger

import (
	"time"

	"github.com/h1v3-io/intake/pkg/protocol"
)

// Status is the outcome of a filing attempt.
type Status string

const (
	StatusFiled  Status = "filed"
	StatusFailed Status = "failed"
)

// Filing is one ticket filing attempt.
type Filing struct {
	ID              string          `json:"id"`
	ConversationKey string          `json:"conversation_key"`
	UserID          string          `json:"user_id"`
	ChannelID       string          `json:"channel_id"`
	Status          Status          `json:"status"`
	Title           string          `json:"title"`
	IssueIdentifier string          `json:"issue_identifier,omitempty"`
	IssueURL        string          `json:"issue_url,omitempty"`
	Error           string          `json:"error,omitempty"`
	Transcript      []protocol.Turn `json:"transcript,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Store is the persistence interface for filing records.
type Store interface {
	// Record saves a filing attempt, assigning ID and CreatedAt when empty.
	Record(f *Filing) error
	// List returns filings matching the filter, newest first.
	List(filter Filter) ([]*Filing, error)
	// Count returns the number of filings matching the filter.
	Count(filter Filter) (int, error)
}

// Filter constrains filing queries.
type Filter struct {
	Status *Status
	UserID string
	Since  time.Time
	Limit  int // 0 = no limit
}
