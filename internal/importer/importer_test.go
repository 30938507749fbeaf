package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/meridianhq/issueboard/internal/config"
	"github.com/meridianhq/issueboard/internal/ingest"
	"github.com/meridianhq/issueboard/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTracker is an in-memory TrackerAPI. Unless bulkResp is set, bulk
// creates succeed and assign keys PROJ-1, PROJ-2, ... in batch order.
type fakeTracker struct {
	mu sync.Mutex

	issueTypes    []tracker.IssueType
	issueTypesErr error

	users          map[string][]tracker.User
	searchCalls    map[string]int
	searchErrEmail string

	bulkResp  *tracker.BulkCreateResponse
	bulkErr   error
	bulkCalls [][]tracker.IssuePayload
}

func (f *fakeTracker) GetProjectIssueTypes(ctx context.Context, projectID string) ([]tracker.IssueType, error) {
	if f.issueTypesErr != nil {
		return nil, f.issueTypesErr
	}
	return f.issueTypes, nil
}

func (f *fakeTracker) SearchUsers(ctx context.Context, query string, maxResults int) ([]tracker.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchCalls == nil {
		f.searchCalls = make(map[string]int)
	}
	f.searchCalls[query]++
	if query == f.searchErrEmail && f.searchErrEmail != "" {
		return nil, errors.New("search unavailable")
	}
	return f.users[query], nil
}

func (f *fakeTracker) BulkCreateIssues(ctx context.Context, payloads []tracker.IssuePayload) (*tracker.BulkCreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkCalls = append(f.bulkCalls, payloads)
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	if f.bulkResp != nil {
		return f.bulkResp, nil
	}
	resp := &tracker.BulkCreateResponse{}
	for i := range payloads {
		resp.Issues = append(resp.Issues, tracker.CreatedIssue{
			ID:  fmt.Sprintf("1000%d", i+1),
			Key: fmt.Sprintf("PROJ-%d", i+1),
		})
	}
	return resp, nil
}

func standardTypes() []tracker.IssueType {
	return []tracker.IssueType{
		{ID: "1", Name: "Story"},
		{ID: "2", Name: "Task"},
		{ID: "3", Name: "Epic"},
		{ID: "4", Name: "Sub-task", Subtask: true},
	}
}

func testConfig() config.TrackerConfig {
	return config.TrackerConfig{
		Email:            "importer@example.com",
		StoryPointsField: "customfield_10016",
		EpicNameField:    "customfield_10011",
		UserLookupLimit:  4,
	}
}

func newTestService(f *fakeTracker) *Service {
	return New(f, testConfig())
}

func csvFile(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

func TestRunCreatesAllValidRows(t *testing.T) {
	f := &fakeTracker{issueTypes: standardTypes()}
	svc := newTestService(f)

	file := csvFile(
		"Summary,Issue Type,Story Points",
		"First story,Story,5",
		"Second task,Task,",
	)

	report, err := svc.Run(context.Background(), "10001", file, ingest.FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, 2, report.CreatedCount)
	assert.Equal(t, 0, report.FailedCount)
	assert.True(t, report.Success())
	assert.Empty(t, report.Message())

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, "PROJ-1", report.Outcomes[0].IssueKey)
	assert.Equal(t, "PROJ-2", report.Outcomes[1].IssueKey)

	require.Len(t, f.bulkCalls, 1)
	assert.Len(t, f.bulkCalls[0], 2)
}

func TestRunSkipsRowsMissingRequiredColumns(t *testing.T) {
	f := &fakeTracker{issueTypes: standardTypes()}
	svc := newTestService(f)

	file := csvFile(
		"Summary,Issue Type",
		",Story",
		"Has summary,",
		"Valid row,Task",
	)

	report, err := svc.Run(context.Background(), "10001", file, ingest.FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, 1, report.CreatedCount)
	assert.Equal(t, 2, report.FailedCount)

	assert.Equal(t, StatusSkipped, report.Outcomes[0].Status)
	assert.Contains(t, report.Outcomes[0].Reason, "row 1")
	assert.Contains(t, report.Outcomes[0].Reason, "Summary is required")

	assert.Equal(t, StatusSkipped, report.Outcomes[1].Status)
	assert.Contains(t, report.Outcomes[1].Reason, "row 2")
	assert.Contains(t, report.Outcomes[1].Reason, "Issue Type is required")

	// Skipped rows never reach the submission batch
	require.Len(t, f.bulkCalls, 1)
	assert.Len(t, f.bulkCalls[0], 1)
}

func TestRunUnknownTypeReasonListsValidTypes(t *testing.T) {
	f := &fakeTracker{issueTypes: standardTypes()}
	svc := newTestService(f)

	file := csvFile(
		"Summary,Issue Type",
		"A bug report,Bug",
	)

	report, err := svc.Run(context.Background(), "10001", file, ingest.FormatCSV)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	reason := report.Outcomes[0].Reason
	assert.Contains(t, reason, `unknown issue type "Bug"`)
	for _, name := range []string{"Story", "Task", "Epic", "Sub-task"} {
		assert.Contains(t, reason, name)
	}
	assert.Empty(t, f.bulkCalls)
}

func TestRunSubtaskRequiresParentKey(t *testing.T) {
	f := &fakeTracker{issueTypes: standardTypes()}
	svc := newTestService(f)

	file := csvFile(
		"Summary,Issue Type,Parent Key",
		"Orphan subtask,Sub-task,",
		"Linked subtask,Sub-task,PROJ-7",
	)

	report, err := svc.Run(context.Background(), "10001", file, ingest.FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, report.Outcomes[0].Status)
	assert.Contains(t, report.Outcomes[0].Reason, "Parent Key")

	assert.Equal(t, StatusCreated, report.Outcomes[1].Status)
	require.Len(t, f.bulkCalls, 1)
	parent := f.bulkCalls[0][0].Fields["parent"].(map[string]string)
	assert.Equal(t, "PROJ-7", parent["key"])
}

func TestRunEpicGetsSyntheticEpicName(t *testing.T) {
	f := &fakeTracker{issueTypes: standardTypes()}
	svc := newTestService(f)

	file := csvFile(
		"Summary,Issue Type",
		"Q3 platform work,EPIC",
	)

	_, err := svc.Run(context.Background(), "10001", file, ingest.FormatCSV)
	require.NoError(t, err)

	require.Len(t, f.bulkCalls, 1)
	fields := f.bulkCalls[0][0].Fields
	assert.Equal(t, "Q3 platform work", fields["customfield_10011"])
}

func TestRunPartialBatchFailure(t *testing.T) {
	// Three submitted, tracker rejects the middle element. Created keys
	// arrive in submission order with the rejected element removed.
	f := &fakeTracker{
		issueTypes: standardTypes(),
		bulkResp: &tracker.BulkCreateResponse{
			Issues: []tracker.CreatedIssue{
				{Key: "PROJ-21"},
				{Key: "PROJ-22"},
			},
			Errors: []tracker.ElementError{
				{
					FailedElementNumber: 1,
					ElementErrors: tracker.ErrorDetails{
						ErrorMessages: []string{"field 'labels' is invalid"},
					},
				},
			},
		},
	}
	svc := newTestService(f)

	file := csvFile(
		"Summary,Issue Type",
		"First,Story",
		"Second,Story",
		"Third,Story",
	)

	report, err := svc.Run(context.Background(), "10001", file, ingest.FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, 2, report.CreatedCount)
	assert.Equal(t, 1, report.FailedCount)

	assert.Equal(t, StatusCreated, report.Outcomes[0].Status)
	assert.Equal(t, "PROJ-21", report.Outcomes[0].IssueKey)

	// The failure message names the row's summary, not the batch index
	assert.Equal(t, StatusFailed, report.Outcomes[1].Status)
	assert.Contains(t, report.Outcomes[1].Reason, `"Second"`)
	assert.Contains(t, report.Outcomes[1].Reason, "field 'labels' is invalid")

	assert.Equal(t, StatusCreated, report.Outcomes[2].Status)
	assert.Equal(t, "PROJ-22", report.Outcomes[2].IssueKey)
}

func TestRunBatchIndexTranslation(t *testing.T) {
	// Row 2 is skipped locally, so the submitted batch holds rows 1 and 3
	// at batch indices 0 and 1. A failure at batch index 1 must land on
	// row 3, not row 2.
	f := &fakeTracker{
		issueTypes: standardTypes(),
		bulkResp: &tracker.BulkCreateResponse{
			Issues: []tracker.CreatedIssue{{Key: "PROJ-31"}},
			Errors: []tracker.ElementError{
				{
					FailedElementNumber: 1,
					ElementErrors: tracker.ErrorDetails{
						ErrorMessages: []string{"assignee cannot be set"},
					},
				},
			},
		},
	}
	svc := newTestService(f)

	file := csvFile(
		"Summary,Issue Type",
		"Row one,Story",
		"Row two,Nonexistent",
		"Row three,Task",
	)

	report, err := svc.Run(context.Background(), "10001", file, ingest.FormatCSV)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, StatusCreated, report.Outcomes[0].Status)
	assert.Equal(t, 1, report.Outcomes[0].RowNumber)

	assert.Equal(t, StatusSkipped, report.Outcomes[1].Status)
	assert.Equal(t, 2, report.Outcomes[1].RowNumber)

	assert.Equal(t, StatusFailed, report.Outcomes[2].Status)
	assert.Equal(t, 3, report.Outcomes[2].RowNumber)
	assert.Contains(t, report.Outcomes[2].Reason, `"Row three"`)
}

func TestRunScenarioThreeRows(t *testing.T) {
	f := &fakeTracker{issueTypes: standardTypes()}
	svc := newTestService(f)

	file := csvFile(
		"Summary,Issue Type,Story Points,Parent Key",
		"Valid story,Story,5,",
		"A bug,Bug,,",
		"Dangling subtask,Sub-task,,",
	)

	report, err := svc.Run(context.Background(), "10001", file, ingest.FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, 1, report.CreatedCount)
	assert.Equal(t, 2, report.FailedCount)

	assert.Contains(t, report.Outcomes[1].Reason, "Story, Task, Epic, Sub-task")
	assert.Contains(t, report.Outcomes[2].Reason, "Parent Key")

	require.Len(t, f.bulkCalls, 1)
	fields := f.bulkCalls[0][0].Fields
	assert.Equal(t, "Valid story", fields["summary"])
	assert.Equal(t, 5.0, fields["customfield_10016"])
}

func TestRunAllRowsSkippedMakesNoSubmission(t *testing.T) {
	f := &fakeTracker{issueTypes: standardTypes()}
	svc := newTestService(f)

	file := csvFile(
		"Summary,Issue Type",
		",Story",
		"No type,",
	)

	report, err := svc.Run(context.Background(), "10001", file, ingest.FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, 0, report.CreatedCount)
	assert.Equal(t, 2, report.FailedCount)
	assert.Empty(t, f.bulkCalls)
}

func TestRunParseErrorIsFatal(t *testing.T) {
	f := &fakeTracker{issueTypes: standardTypes()}
	svc := newTestService(f)

	report, err := svc.Run(context.Background(), "10001", []byte{}, ingest.FormatCSV)

	require.Error(t, err)
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
	assert.Nil(t, report)
	// Fatal before any network call
	assert.Empty(t, f.searchCalls)
	assert.Empty(t, f.bulkCalls)
}

func TestRunConfigFetchErrorIsFatal(t *testing.T) {
	f := &fakeTracker{issueTypesErr: errors.New("boom")}
	svc := newTestService(f)

	file := csvFile("Summary,Issue Type", "Some row,Story")

	report, err := svc.Run(context.Background(), "10001", file, ingest.FormatCSV)

	require.Error(t, err)
	var cfgErr *ConfigFetchError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "10001", cfgErr.ProjectID)
	assert.Nil(t, report)
	assert.Empty(t, f.bulkCalls)
}

func TestRunEmptyIssueTypeSetIsConfigError(t *testing.T) {
	f := &fakeTracker{issueTypes: []tracker.IssueType{}}
	svc := newTestService(f)

	file := csvFile("Summary,Issue Type", "Some row,Story")

	_, err := svc.Run(context.Background(), "10001", file, ingest.FormatCSV)

	var cfgErr *ConfigFetchError
	require.ErrorAs(t, err, &cfgErr)
}

func TestRunSubmissionErrorIsFatal(t *testing.T) {
	f := &fakeTracker{
		issueTypes: standardTypes(),
		bulkErr:    errors.New("connection reset"),
	}
	svc := newTestService(f)

	file := csvFile("Summary,Issue Type", "Some row,Story")

	report, err := svc.Run(context.Background(), "10001", file, ingest.FormatCSV)

	require.Error(t, err)
	var subErr *SubmissionError
	assert.ErrorAs(t, err, &subErr)
	assert.Nil(t, report)
}

func TestRunCancelledBeforeSubmission(t *testing.T) {
	f := &fakeTracker{issueTypes: standardTypes()}
	svc := newTestService(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	file := csvFile("Summary,Issue Type", "Some row,Story")

	_, err := svc.Run(ctx, "10001", file, ingest.FormatCSV)

	require.Error(t, err)
	assert.Empty(t, f.bulkCalls)
}

func TestRunIsNotIdempotent(t *testing.T) {
	// Explicit non-property: re-running the identical import issues a
	// second bulk create and duplicates every issue. Nothing dedupes.
	f := &fakeTracker{issueTypes: standardTypes()}
	svc := newTestService(f)

	file := csvFile("Summary,Issue Type", "Same row,Story")

	first, err := svc.Run(context.Background(), "10001", file, ingest.FormatCSV)
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), "10001", file, ingest.FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, 1, first.CreatedCount)
	assert.Equal(t, 1, second.CreatedCount)
	assert.Len(t, f.bulkCalls, 2)
}

func TestReportMessageListsEveryFailure(t *testing.T) {
	f := &fakeTracker{issueTypes: standardTypes()}
	svc := newTestService(f)

	file := csvFile(
		"Summary,Issue Type",
		",Story",
		"Bad type,Widget",
		"Good row,Task",
	)

	report, err := svc.Run(context.Background(), "10001", file, ingest.FormatCSV)
	require.NoError(t, err)

	msg := report.Message()
	lines := strings.Split(msg, "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, msg, "row 1")
	assert.Contains(t, msg, "row 2")
	assert.NotContains(t, msg, "Good row")
}
