// Package ledger is the durable, append-only record of submission attempts
// and outcomes. It backs deduplication, retry and reporting.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// Status of one application attempt.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusFailed    Status = "failed"
)

// ErrDuplicateSubmission is returned when a second submitted record for the
// same job id is appended. At most one successful submission per job may
// exist.
var ErrDuplicateSubmission = errors.New("job already has a submitted record")

// Record is one application attempt. Records are append-only: the only
// permitted mutation after creation is flipping a failed record to submitted
// on a successful retry, which also stamps RetriedAt.
type Record struct {
	ID          string     `json:"id"`
	JobID       string     `json:"job_id"`
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	SubmittedAt time.Time  `json:"submitted_at"`
	Status      Status     `json:"status"`
	MatchScore  *float64   `json:"match_score,omitempty"`
	CoverLetter bool       `json:"cover_letter_generated"`
	Error       string     `json:"error,omitempty"`
	RetriedAt   *time.Time `json:"retried_at,omitempty"`
}

// Stats aggregates ledger counts for reporting.
type Stats struct {
	TotalApplications int     `json:"total_applications"`
	TotalSubmitted    int     `json:"total_submitted"`
	SubmittedToday    int     `json:"submitted_today"`
	SuccessRate       float64 `json:"success_rate"`
	AverageScore      float64 `json:"average_score"`
}

// Store is a sqlite-backed ledger.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

const schema = `create table if not exists applications(
	id text primary key,
	job_id text not null,
	title text not null default '',
	company text not null default '',
	submitted_at datetime not null,
	status text not null,
	match_score real,
	cover_letter integer not null default 0,
	error text not null default '',
	retried_at datetime
);
create index if not exists idx_applications_job_id on applications(job_id);
create unique index if not exists idx_applications_submitted_once
	on applications(job_id) where status = 'submitted';`

// Open opens (creating if needed) the ledger database at path.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}

	return &Store{db: db, clock: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one application attempt. A missing id is generated. A second
// submitted record for the same job id fails with ErrDuplicateSubmission.
func (s *Store) Record(rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = s.clock()
	}

	_, err := s.db.Exec(
		`insert into applications
			(id, job_id, title, company, submitted_at, status, match_score, cover_letter, error)
		 values (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.JobID, rec.Title, rec.Company, rec.SubmittedAt,
		string(rec.Status), nullFloat(rec.MatchScore), rec.CoverLetter, rec.Error,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("job %s: %w", rec.JobID, ErrDuplicateSubmission)
		}
		return fmt.Errorf("append record for job %s: %w", rec.JobID, err)
	}

	return nil
}

// Contains reports whether any record exists for the given job id. It is the
// dedup predicate used to filter discovery results before scoring.
func (s *Store) Contains(jobID string) (bool, error) {
	var count int
	err := s.db.QueryRow(`select count(1) from applications where job_id = ?`, jobID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("lookup job %s: %w", jobID, err)
	}
	return count > 0, nil
}

// FailedRecords returns failed attempts, most recent first, capped to limit.
func (s *Store) FailedRecords(limit int) ([]*Record, error) {
	rows, err := s.db.Query(
		`select id, job_id, title, company, submitted_at, status, match_score, cover_letter, error, retried_at
		 from applications where status = ? order by submitted_at desc limit ?`,
		string(StatusFailed), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query failed records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// MarkRetried flips a failed record to submitted and stamps the retry time.
// This is the only mutation the ledger permits.
func (s *Store) MarkRetried(id string, when time.Time) error {
	res, err := s.db.Exec(
		`update applications set status = ?, retried_at = ?, error = '' where id = ? and status = ?`,
		string(StatusSubmitted), when, id, string(StatusFailed),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("record %s: %w", id, ErrDuplicateSubmission)
		}
		return fmt.Errorf("mark record %s retried: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("record %s is not a failed record", id)
	}

	return nil
}

// History returns records most recent first, capped to limit.
func (s *Store) History(limit int) ([]*Record, error) {
	rows, err := s.db.Query(
		`select id, job_id, title, company, submitted_at, status, match_score, cover_letter, error, retried_at
		 from applications order by submitted_at desc limit ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Stats aggregates counts over the whole ledger. "Today" is the local
// calendar date, matching the throttle's quota window.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRow(
		`select count(1),
			count(case when status = ? then 1 end),
			coalesce(avg(match_score), 0)
		 from applications`,
		string(StatusSubmitted),
	).Scan(&stats.TotalApplications, &stats.TotalSubmitted, &stats.AverageScore)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}

	now := s.clock().Local()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	// A row flipped to submitted by a retry counts against the day the
	// retry happened, matching what the throttle recorded.
	err = s.db.QueryRow(
		`select count(1) from applications
		 where status = ?
		   and (coalesce(retried_at, submitted_at) >= ?)`,
		string(StatusSubmitted), startOfDay,
	).Scan(&stats.SubmittedToday)
	if err != nil {
		return nil, fmt.Errorf("aggregate today stats: %w", err)
	}

	if stats.TotalApplications > 0 {
		stats.SuccessRate = float64(stats.TotalSubmitted) / float64(stats.TotalApplications)
	}

	return stats, nil
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		rec := &Record{}
		var status string
		var score sql.NullFloat64
		var retriedAt sql.NullTime

		err := rows.Scan(&rec.ID, &rec.JobID, &rec.Title, &rec.Company, &rec.SubmittedAt,
			&status, &score, &rec.CoverLetter, &rec.Error, &retriedAt)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}

		rec.Status = Status(status)
		if score.Valid {
			rec.MatchScore = &score.Float64
		}
		if retriedAt.Valid {
			t := retriedAt.Time
			rec.RetriedAt = &t
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
