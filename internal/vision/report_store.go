package vision

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// StoredReport is a persisted analysis report row in proctoring_reports.
type StoredReport struct {
	ReportID  int64  `json:"report_id"`
	SessionID string `json:"session_id"`
	Report    Report `json:"report"`
	CreatedAt string `json:"created_at,omitempty"`
}

// ReportStore handles database operations for proctoring reports and their
// violation events.
type ReportStore struct {
	db *sql.DB
}

// NewReportStore creates a new ReportStore.
func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

// SaveReport persists a finalized report and its violation events in one
// transaction. A session may only be saved once.
func (rs *ReportStore) SaveReport(sessionID string, report *Report, events []ViolationEvent) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	tx, err := rs.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO proctoring_reports (
			session_id, report_json, processing_time_sec, video_duration_sec, frames_processed
		) VALUES (?, ?, ?, ?, ?)`,
		sessionID, string(reportJSON),
		report.Metadata.ProcessingTimeSec,
		report.Metadata.VideoDurationSec,
		report.Metadata.FramesProcessed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	for _, ev := range events {
		_, err = tx.Exec(`
			INSERT INTO violation_events (session_id, category, start_time, duration, intensity)
			VALUES (?, ?, ?, ?, ?)`,
			sessionID, string(ev.Category), ev.StartTime, ev.Duration, ev.Intensity,
		)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}
	return nil
}

// GetReport retrieves one session's report. Returns sql.ErrNoRows when the
// session has no persisted report.
func (rs *ReportStore) GetReport(sessionID string) (*StoredReport, error) {
	row := rs.db.QueryRow(`
		SELECT report_id, session_id, report_json, created_at
		FROM proctoring_reports WHERE session_id = ?`, sessionID)

	return scanStoredReport(row)
}

// ListReports retrieves the most recent reports, newest first.
func (rs *ReportStore) ListReports(limit int) ([]*StoredReport, error) {
	query := `
		SELECT report_id, session_id, report_json, created_at
		FROM proctoring_reports ORDER BY report_id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rs.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := []*StoredReport{}
	for rows.Next() {
		r, err := scanStoredReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating report rows: %w", err)
	}
	return reports, nil
}

// ListEvents retrieves a session's violation events ordered by start time.
func (rs *ReportStore) ListEvents(sessionID string) ([]ViolationEvent, error) {
	rows, err := rs.db.Query(`
		SELECT category, start_time, duration, intensity
		FROM violation_events WHERE session_id = ? ORDER BY start_time`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []ViolationEvent{}
	for rows.Next() {
		var ev ViolationEvent
		var category string
		if err := rows.Scan(&category, &ev.StartTime, &ev.Duration, &ev.Intensity); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		ev.Category = ViolationCategory(category)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}

// EventSummary returns per-category event counts for a session.
func (rs *ReportStore) EventSummary(sessionID string) (map[ViolationCategory]int, error) {
	rows, err := rs.db.Query(`
		SELECT category, COUNT(*) FROM violation_events
		WHERE session_id = ? GROUP BY category`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query event summary: %w", err)
	}
	defer rows.Close()

	summary := make(map[ViolationCategory]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summary[ViolationCategory(category)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary rows: %w", err)
	}
	return summary, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStoredReport(row rowScanner) (*StoredReport, error) {
	r := &StoredReport{}
	var reportJSON string
	var createdAt sql.NullString

	if err := row.Scan(&r.ReportID, &r.SessionID, &reportJSON, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan report row: %w", err)
	}

	if err := json.Unmarshal([]byte(reportJSON), &r.Report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored report: %w", err)
	}
	if createdAt.Valid {
		r.CreatedAt = createdAt.String
	}
	return r, nil
}
