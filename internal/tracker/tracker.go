// Package tracker talks to the Linear issue tracker.
package tracker

import (
	"errors"
	"time"
)

// ErrTeamNotFound is returned when no team matches the configured key.
var ErrTeamNotFound = errors.New("tracker: team not found")

// Team is a Linear team.
type Team struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// IssueInput describes an issue to create.
type IssueInput struct {
	TeamID      string
	Title       string
	Description string
}

// Issue is a created or listed Linear issue.
type Issue struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"createdAt"`
}
