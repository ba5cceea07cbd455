package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

// DB wraps the reports database connection.
type DB struct {
	*sql.DB
}

// NewDB opens the sqlite database at path and ensures the baseline schema
// exists. Use ":memory:" for throwaway databases in tests. Schema changes
// beyond the baseline are managed through migrations (see migrate.go).
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = sqlDB.Exec(`
		CREATE TABLE IF NOT EXISTS proctoring_reports (
			report_id           INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id          TEXT NOT NULL UNIQUE,
			report_json         TEXT NOT NULL,
			processing_time_sec INTEGER,
			video_duration_sec  INTEGER,
			frames_processed    INTEGER,
			created_at          TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS violation_events (
			event_id            INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id          TEXT NOT NULL,
			category            TEXT NOT NULL,
			start_time          DOUBLE NOT NULL,
			duration            DOUBLE NOT NULL,
			intensity           DOUBLE NOT NULL,
			created_at          TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_violation_events_session
			ON violation_events(session_id, start_time);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{sqlDB}, nil
}

// AttachAdminRoutes mounts SQL live-debugging and backup endpoints on the
// given mux under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://reports.db", db.DB, &tailsql.DBOptions{
		Label: "Reports DB",
	})

	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
