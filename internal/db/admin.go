package db

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/tagview/internal/httputil"
	"github.com/banshee-data/tagview/internal/monitoring"
)

var logf = monitoring.Prefixed("db")

// AttachAdminRoutes mounts tailsql, a profile listing and a backup endpoint
// on the debug handler.
func (db *DB) AttachAdminRoutes(debug *tsweb.DebugHandler, label string) error {
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+label, db.DB, &tailsql.DBOptions{
		Label: "Camera profiles",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("profiles", "Camera profiles (JSON)", func(w http.ResponseWriter, r *http.Request) {
		profiles, err := db.ListProfiles()
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, profiles)
	})

	debug.HandleFunc("sessions", "Recent detection sessions (JSON)", func(w http.ResponseWriter, r *http.Request) {
		sessions, err := db.RecentSessions(50)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, sessions)
	})

	debug.HandleFunc("backup", "Create and download a backup of the database now", db.handleBackup)
	return nil
}

func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("tagview-backup-%d.db", time.Now().Unix())
	path := filepath.Join(os.TempDir(), name)
	if _, err := db.Exec("VACUUM INTO ?", path); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		logf("backup copy failed: %v", err)
	}
}
