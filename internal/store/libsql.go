package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/solvik/meetwise/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Meetings ---

func (s *LibSQLStore) CreateMeeting(ctx context.Context, m *Meeting) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO meetings (user_id, client_id, calendar_event_id, zoom_meeting_id, title, meeting_date, attendees, transcript, notes, summary, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.UserID, nullInt(m.ClientID), nullStr(m.CalendarEventID), nullStr(m.ZoomMeetingID),
		m.Title, nullTime(m.MeetingDate), nullStr(m.Attendees),
		nullStr(m.Transcript), nullStr(m.Notes), nullStr(m.Summary),
		timeOrNow(m.CreatedAt), timeOrNow(m.UpdatedAt),
	)
	if err != nil {
		return err
	}
	m.ID, err = res.LastInsertId()
	return err
}

const meetingColumns = `id, user_id, client_id, calendar_event_id, zoom_meeting_id, title, meeting_date, attendees, transcript, notes, summary, created_at, updated_at`

func scanMeeting(row interface{ Scan(...any) error }) (*Meeting, error) {
	m := &Meeting{}
	var (
		clientID                   sql.NullInt64
		eventID, zoomID, attendees sql.NullString
		transcript, notes, summary sql.NullString
		meetingDate                sql.NullTime
	)
	err := row.Scan(&m.ID, &m.UserID, &clientID, &eventID, &zoomID, &m.Title,
		&meetingDate, &attendees, &transcript, &notes, &summary, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if clientID.Valid {
		m.ClientID = &clientID.Int64
	}
	m.CalendarEventID = eventID.String
	m.ZoomMeetingID = zoomID.String
	m.Attendees = attendees.String
	m.Transcript = transcript.String
	m.Notes = notes.String
	m.Summary = summary.String
	if meetingDate.Valid {
		t := meetingDate.Time
		m.MeetingDate = &t
	}
	return m, nil
}

func (s *LibSQLStore) GetMeeting(ctx context.Context, id int64) (*Meeting, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE id = ?`, id)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("meeting", fmt.Sprint(id))
	}
	return m, err
}

func (s *LibSQLStore) GetMeetingByCalendarEventID(ctx context.Context, userID int64, eventID string) (*Meeting, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE user_id = ? AND calendar_event_id = ?`,
		userID, eventID)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("meeting", eventID)
	}
	return m, err
}

func (s *LibSQLStore) UpdateMeeting(ctx context.Context, id int64, update MeetingUpdate) error {
	var sets []string
	var args []any

	if update.ClientID != nil {
		sets = append(sets, "client_id = ?")
		args = append(args, *update.ClientID)
	}
	if update.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *update.Title)
	}
	if update.MeetingDate != nil {
		sets = append(sets, "meeting_date = ?")
		args = append(args, *update.MeetingDate)
	}
	if update.Attendees != nil {
		sets = append(sets, "attendees = ?")
		args = append(args, *update.Attendees)
	}
	if update.Transcript != nil {
		sets = append(sets, "transcript = ?")
		args = append(args, *update.Transcript)
	}
	if update.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *update.Notes)
	}
	if update.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, *update.Summary)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE meetings SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "meeting", fmt.Sprint(id))
}

func (s *LibSQLStore) ListMeetings(ctx context.Context, filter MeetingFilter) ([]*Meeting, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings WHERE 1=1`
	var args []any

	if filter.UserID != 0 {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.ClientID != nil {
		query += ` AND client_id = ?`
		args = append(args, *filter.ClientID)
	}
	if filter.From != nil {
		query += ` AND meeting_date >= ?`
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		query += ` AND meeting_date < ?`
		args = append(args, *filter.To)
	}
	if filter.MissingTranscript {
		query += ` AND (transcript IS NULL OR transcript = '')`
	}
	query += ` ORDER BY meeting_date DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meetings []*Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// --- Clients ---

func (s *LibSQLStore) CreateClient(ctx context.Context, c *Client) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (user_id, name, company, created_at) VALUES (?, ?, ?, ?)`,
		c.UserID, c.Name, nullStr(c.Company), timeOrNow(c.CreatedAt),
	)
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (s *LibSQLStore) GetClient(ctx context.Context, id int64) (*Client, error) {
	c := &Client{}
	var company sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, company, created_at FROM clients WHERE id = ?`, id,
	).Scan(&c.ID, &c.UserID, &c.Name, &company, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("client", fmt.Sprint(id))
	}
	if err != nil {
		return nil, err
	}
	c.Company = company.String
	return c, nil
}

func (s *LibSQLStore) SearchClientsByName(ctx context.Context, userID int64, name string) ([]*Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, company, created_at FROM clients
		 WHERE user_id = ? AND (name LIKE '%' || ? || '%' COLLATE NOCASE OR company LIKE '%' || ? || '%' COLLATE NOCASE)
		 ORDER BY name`,
		userID, name, name,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		c := &Client{}
		var company sql.NullString
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &company, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Company = company.String
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// --- Memory ---

func (s *LibSQLStore) GetMemory(ctx context.Context, userID int64, key string) (*MemoryEntry, error) {
	e := &MemoryEntry{}
	var clientID sql.NullInt64
	var value sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, client_id, key, value, updated_at FROM memory_entries
		 WHERE user_id = ? AND key = ?`, userID, key,
	).Scan(&e.ID, &e.UserID, &clientID, &e.Key, &value, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("memory entry", key)
	}
	if err != nil {
		return nil, err
	}
	if clientID.Valid {
		e.ClientID = &clientID.Int64
	}
	e.Value = rawOrNil(value)
	return e, nil
}

func (s *LibSQLStore) SetMemory(ctx context.Context, entry *MemoryEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_entries (user_id, client_id, key, value, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id, key) DO UPDATE SET
		   client_id = excluded.client_id,
		   value = excluded.value,
		   updated_at = CURRENT_TIMESTAMP`,
		entry.UserID, nullInt(entry.ClientID), entry.Key, string(entry.Value),
	)
	return err
}

func (s *LibSQLStore) DeleteMemory(ctx context.Context, userID int64, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM memory_entries WHERE user_id = ? AND key = ?`, userID, key)
	return err
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.WorkflowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

// IsNotFound reports whether err is a store not-found error.
func IsNotFound(err error) bool {
	var we *schema.WorkflowError
	return errors.As(err, &we) && we.Code == schema.ErrCodeNotFound
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

func rawOrNil(ns sql.NullString) []byte {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return []byte(ns.String)
}
