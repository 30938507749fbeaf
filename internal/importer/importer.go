// Package importer implements the bulk issue import pipeline: spreadsheet
// rows in, validated batch-create out, one row-addressable report back.
//
// The pipeline is deliberately retry-free and not idempotent: re-running
// the same file creates a duplicate set of issues. Transient-failure
// recovery is the caller re-initiating the whole import.
package importer

import (
	"context"

	"github.com/meridianhq/issueboard/internal/config"
	"github.com/meridianhq/issueboard/internal/ingest"
	"github.com/meridianhq/issueboard/internal/pkg/logger"
	"github.com/meridianhq/issueboard/internal/tracker"
	"golang.org/x/sync/errgroup"
)

// TrackerAPI is the slice of the tracker client the pipeline needs
type TrackerAPI interface {
	GetProjectIssueTypes(ctx context.Context, projectID string) ([]tracker.IssueType, error)
	SearchUsers(ctx context.Context, query string, maxResults int) ([]tracker.User, error)
	BulkCreateIssues(ctx context.Context, payloads []tracker.IssuePayload) (*tracker.BulkCreateResponse, error)
}

// Service runs bulk imports against one configured tracker
type Service struct {
	client TrackerAPI
	cfg    config.TrackerConfig
}

// New creates an import service
func New(client TrackerAPI, cfg config.TrackerConfig) *Service {
	return &Service{client: client, cfg: cfg}
}

// Run executes one full import: parse, resolve project schema and
// referenced users, validate and build per row, submit one batch, and
// reconcile per-element results back to original row numbers.
//
// Fatal conditions (ParseError, ConfigFetchError, SubmissionError, and
// context cancellation observed before submission) return a nil report.
// Row-local problems never abort the import; they land in the report.
func (s *Service) Run(ctx context.Context, projectID string, file []byte, format ingest.Format) (*Report, error) {
	rows, err := ingest.Parse(file, format)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	resolver := NewUserResolver(s.client, 0, s.cfg.UserLookupLimit)

	// Schema fetch and user prefetch share one concurrent stage; only the
	// schema can fail the import.
	var schema *Schema
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		schema, err = ResolveSchema(gctx, s.client, projectID)
		return err
	})
	g.Go(func() error {
		resolver.Prefetch(gctx, referencedEmails(rows, s.cfg.Email))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	users := &userLookups{
		resolve:       func(email string) *ResolvedUser { return resolver.Resolve(ctx, email) },
		importerEmail: s.cfg.Email,
	}

	// Fan out validation per row; results land at the row's own index so
	// ordering survives arbitrary completion order.
	results := make([]rowResult, len(rows))
	bg, _ := errgroup.WithContext(ctx)
	bg.SetLimit(s.cfg.UserLookupLimit)
	for i, row := range rows {
		i, row := i, row
		bg.Go(func() error {
			results[i] = s.buildRow(row, projectID, schema, users)
			return nil
		})
	}
	bg.Wait()

	// Split outcomes from payloads, keeping the batch-index → row mapping
	// needed to translate per-element failures back.
	var outcomes []RowOutcome
	var batch []tracker.IssuePayload
	var batchRows []rowResult
	for _, res := range results {
		if res.skip != nil {
			outcomes = append(outcomes, *res.skip)
			continue
		}
		batch = append(batch, *res.payload)
		batchRows = append(batchRows, res)
	}

	logger.Info("import validated",
		"project", projectID,
		"rows", len(rows),
		"submitting", len(batch),
		"skipped", len(outcomes))

	if len(batch) == 0 {
		return buildReport(projectID, outcomes), nil
	}

	// Best effort: do not start the submission stage on a dead context.
	// An already-issued bulk create cannot be partially cancelled.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := s.client.BulkCreateIssues(ctx, batch)
	if err != nil {
		return nil, &SubmissionError{Err: err}
	}

	outcomes = append(outcomes, reconcile(resp, batchRows)...)

	report := buildReport(projectID, outcomes)
	logger.Info("import finished",
		"project", projectID,
		"created", report.CreatedCount,
		"failed", report.FailedCount)
	return report, nil
}

// reconcile translates the tracker's response back to row outcomes. The
// tracker reports rejections by batch index and lists created issues in
// submission order with the rejected elements removed.
func reconcile(resp *tracker.BulkCreateResponse, batchRows []rowResult) []RowOutcome {
	failedByIndex := make(map[int]tracker.ElementError, len(resp.Errors))
	for _, e := range resp.Errors {
		failedByIndex[e.FailedElementNumber] = e
	}

	outcomes := make([]RowOutcome, 0, len(batchRows))
	createdIdx := 0
	for i, res := range batchRows {
		if elemErr, failed := failedByIndex[i]; failed {
			outcomes = append(outcomes, failedOutcome(res.rowNumber, res.summary, elemErr.Messages()))
			continue
		}
		issueKey := ""
		if createdIdx < len(resp.Issues) {
			issueKey = resp.Issues[createdIdx].Key
			createdIdx++
		}
		outcomes = append(outcomes, createdOutcome(res.rowNumber, res.summary, issueKey))
	}
	return outcomes
}
