package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/meridianhq/issueboard/internal/importer"
	"github.com/meridianhq/issueboard/internal/ingest"
	"github.com/meridianhq/issueboard/internal/repository/postgres"
)

// ImportRunner is the slice of the import service the handlers need
type ImportRunner interface {
	Run(ctx context.Context, projectID string, file []byte, format ingest.Format) (*importer.Report, error)
}

// Pinger reports whether the tracker is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the HTTP handler dependencies. History (db) and async
// jobs (jobs) are optional; nil disables the corresponding endpoints.
type Handlers struct {
	importer ImportRunner
	tracker  Pinger
	jobs     *JobStore
	history  *postgres.ImportJobRepo
	db       *sql.DB
}

// NewHandlers creates the handler set. db and jobs may be nil.
func NewHandlers(imp ImportRunner, trk Pinger, jobs *JobStore, db *sql.DB) *Handlers {
	h := &Handlers{
		importer: imp,
		tracker:  trk,
		jobs:     jobs,
		db:       db,
	}
	if db != nil {
		h.history = postgres.NewImportJobRepo(db)
	}
	return h
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
