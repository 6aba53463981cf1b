package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/h1v3-io/intake/pkg/protocol"
)

// timeLayout is fixed-width so that created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: wal: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS filings (
			id               TEXT PRIMARY KEY,
			conversation_key TEXT NOT NULL,
			user_id          TEXT NOT NULL DEFAULT '',
			channel_id       TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL,
			title            TEXT NOT NULL DEFAULT '',
			issue_identifier TEXT NOT NULL DEFAULT '',
			issue_url        TEXT NOT NULL DEFAULT '',
			error            TEXT NOT NULL DEFAULT '',
			transcript       TEXT NOT NULL DEFAULT '[]',
			created_at       TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_filings_status ON filings(status);
		CREATE INDEX IF NOT EXISTS idx_filings_created_at ON filings(created_at);
	`)
	if err != nil {
		return fmt.Errorf("ledger: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Record(f *Filing) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now().UTC()
	}
	transcript, err := json.Marshal(f.Transcript)
	if err != nil {
		return fmt.Errorf("ledger: marshal transcript: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO filings (id, conversation_key, user_id, channel_id, status, title, issue_identifier, issue_url, error, transcript, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.ConversationKey, f.UserID, f.ChannelID, string(f.Status), f.Title,
		f.IssueIdentifier, f.IssueURL, f.Error, string(transcript), f.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("ledger: record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(filter Filter) ([]*Filing, error) {
	where, args := filter.where()
	query := `SELECT id, conversation_key, user_id, channel_id, status, title, issue_identifier, issue_url, error, transcript, created_at
		FROM filings WHERE 1=1` + where + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	defer rows.Close()

	var filings []*Filing
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: list scan: %w", err)
		}
		filings = append(filings, f)
	}
	return filings, rows.Err()
}

func (s *SQLiteStore) Count(filter Filter) (int, error) {
	where, args := filter.where()
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM filings WHERE 1=1"+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ledger: count: %w", err)
	}
	return count, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (f Filter) where() (string, []any) {
	var clause string
	var args []any
	if f.Status != nil {
		clause += " AND status = ?"
		args = append(args, string(*f.Status))
	}
	if f.UserID != "" {
		clause += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if !f.Since.IsZero() {
		clause += " AND created_at >= ?"
		args = append(args, f.Since.UTC().Format(timeLayout))
	}
	return clause, args
}

func scanFiling(rows *sql.Rows) (*Filing, error) {
	var f Filing
	var status, transcriptJSON, createdAt string
	err := rows.Scan(&f.ID, &f.ConversationKey, &f.UserID, &f.ChannelID, &status, &f.Title,
		&f.IssueIdentifier, &f.IssueURL, &f.Error, &transcriptJSON, &createdAt)
	if err != nil {
		return nil, err
	}
	f.Status = Status(status)
	json.Unmarshal([]byte(transcriptJSON), &f.Transcript)
	if f.Transcript == nil {
		f.Transcript = []protocol.Turn{}
	}
	f.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &f, nil
}
