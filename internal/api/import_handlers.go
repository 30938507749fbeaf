package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/meridianhq/issueboard/internal/importer"
	"github.com/meridianhq/issueboard/internal/ingest"
	"github.com/meridianhq/issueboard/internal/pkg/logger"
	"github.com/meridianhq/issueboard/internal/repository/postgres"
)

// maxImportFileSize caps uploads; imports this large should be split
const maxImportFileSize = 32 << 20 // 32MB

// HandleImport runs the import pipeline synchronously and returns the
// full report. Fatal pipeline errors map to an HTTP error: bad input is
// the client's fault, tracker trouble is a bad gateway.
func (h *Handlers) HandleImport(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")

	data, filename, format, ok := readImportFile(w, r)
	if !ok {
		return
	}

	started := time.Now().UTC()
	report, err := h.importer.Run(r.Context(), projectID, data, format)
	if err != nil {
		h.recordHistory(r.Context(), projectID, filename, started, nil, err)
		writeImportError(w, err)
		return
	}

	h.recordHistory(r.Context(), projectID, filename, started, report, nil)
	writeJSON(w, http.StatusOK, report)
}

// HandleImportAsync accepts the upload, runs the pipeline in the
// background, and returns 202 with a job ID for polling.
func (h *Handlers) HandleImportAsync(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, http.StatusNotImplemented, "async imports require redis")
		return
	}

	projectID := chi.URLParam(r, "projectId")

	data, filename, format, ok := readImportFile(w, r)
	if !ok {
		return
	}

	jobID := uuid.New().String()
	state := JobState{
		ID:        jobID,
		ProjectID: projectID,
		Filename:  filename,
		Status:    JobProcessing,
		StartedAt: time.Now().UTC(),
	}
	if err := h.jobs.Put(r.Context(), state); err != nil {
		logger.Error("failed to store import job", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create import job")
		return
	}

	// Detached from the request context: the upload is accepted, the
	// client polls for the outcome.
	go h.runImportJob(context.Background(), state, data, format)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": JobProcessing,
	})
}

func (h *Handlers) runImportJob(ctx context.Context, state JobState, data []byte, format ingest.Format) {
	started := state.StartedAt
	report, err := h.importer.Run(ctx, state.ProjectID, data, format)
	if err != nil {
		state.Status = JobFailed
		state.Error = err.Error()
	} else {
		state.Status = JobCompleted
		state.Report = report
	}

	if putErr := h.jobs.Put(ctx, state); putErr != nil {
		logger.Error("failed to update import job", "job_id", state.ID, "error", putErr)
	}
	h.recordHistory(ctx, state.ProjectID, state.Filename, started, report, err)
}

// HandleGetImportJob returns the state of one async import job
func (h *Handlers) HandleGetImportJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, http.StatusNotImplemented, "async imports require redis")
		return
	}

	jobID := chi.URLParam(r, "jobId")
	state, err := h.jobs.Get(r.Context(), jobID)
	if errors.Is(err, ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "import job not found")
		return
	}
	if err != nil {
		logger.Error("failed to load import job", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load import job")
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// HandleListImportJobs lists recent import history for a project
func (h *Handlers) HandleListImportJobs(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "import history requires a database")
		return
	}

	projectID := r.URL.Query().Get("project_id")
	jobs, err := h.history.ListRecent(r.Context(), projectID, 50)
	if err != nil {
		logger.Error("failed to list import history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list import history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// readImportFile extracts the uploaded spreadsheet from the multipart
// form. Format comes from the file extension when recognized, otherwise
// it is sniffed from content. Writes the HTTP error itself on failure.
func readImportFile(w http.ResponseWriter, r *http.Request) ([]byte, string, ingest.Format, bool) {
	if err := r.ParseMultipartForm(maxImportFileSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return nil, "", "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file required")
		return nil, "", "", false
	}
	defer file.Close()

	// Read one byte past the cap so oversized uploads are rejected
	// outright instead of importing a truncated row set.
	data, err := io.ReadAll(io.LimitReader(file, maxImportFileSize+1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return nil, "", "", false
	}
	if len(data) > maxImportFileSize {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds %d byte limit", maxImportFileSize))
		return nil, "", "", false
	}

	var format ingest.Format
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".csv", ".txt", ".tsv":
		format = ingest.FormatCSV
	case ".xlsx":
		format = ingest.FormatXLSX
	}

	return data, header.Filename, format, true
}

func writeImportError(w http.ResponseWriter, err error) {
	var parseErr *importer.ParseError
	if errors.As(err, &parseErr) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var cfgErr *importer.ConfigFetchError
	var subErr *importer.SubmissionError
	if errors.As(err, &cfgErr) || errors.As(err, &subErr) {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeError(w, http.StatusInternalServerError, err.Error())
}

func (h *Handlers) recordHistory(ctx context.Context, projectID, filename string, started time.Time, report *importer.Report, runErr error) {
	if h.history == nil {
		return
	}

	job := postgres.ImportJob{
		ID:         uuid.New(),
		ProjectID:  projectID,
		Filename:   filename,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
	if runErr != nil {
		job.Status = postgres.JobStatusFailed
		job.ErrorMessage = runErr.Error()
	} else {
		job.Status = postgres.JobStatusCompleted
		job.TotalRows = len(report.Outcomes)
		job.CreatedRows = report.CreatedCount
		job.FailedRows = report.FailedCount
		if !report.Success() {
			job.ErrorMessage = report.Message()
		}
	}

	if err := h.history.Record(ctx, job); err != nil {
		// History is best effort; the import result already went out
		logger.Warn("failed to record import history", "project", projectID, "error", err)
	}
}
