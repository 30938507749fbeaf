package importer

import (
	"fmt"
	"sort"
	"strings"
)

// OutcomeStatus is the terminal state of one spreadsheet row
type OutcomeStatus string

const (
	// StatusSkipped - row failed local validation, never submitted
	StatusSkipped OutcomeStatus = "skipped"
	// StatusCreated - tracker accepted the row's payload
	StatusCreated OutcomeStatus = "created"
	// StatusFailed - tracker rejected the row's payload element
	StatusFailed OutcomeStatus = "failed"
)

// RowOutcome is the terminal result for one data row. RowNumber is the
// 1-indexed position in the input file (header excluded) and is stable
// across the whole pipeline regardless of batch filtering.
type RowOutcome struct {
	RowNumber int           `json:"row_number"`
	Status    OutcomeStatus `json:"status"`
	Summary   string        `json:"summary,omitempty"`
	IssueKey  string        `json:"issue_key,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// Report is the final result of one import call
type Report struct {
	ProjectID    string       `json:"project_id"`
	CreatedCount int          `json:"created_count"`
	FailedCount  int          `json:"failed_count"`
	Outcomes     []RowOutcome `json:"outcomes"`
}

// Success reports whether every row was created
func (r *Report) Success() bool {
	return r.FailedCount == 0
}

// Message returns a combined human-readable result: one line per skipped
// or failed row, empty when the import was fully successful.
func (r *Report) Message() string {
	if r.Success() {
		return ""
	}
	var lines []string
	for _, o := range r.Outcomes {
		if o.Status == StatusCreated {
			continue
		}
		lines = append(lines, o.Reason)
	}
	return strings.Join(lines, "\n")
}

// buildReport merges skip-time and submission-time outcomes into one
// sequence ordered by original row number, and derives the counts.
func buildReport(projectID string, outcomes []RowOutcome) *Report {
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].RowNumber < outcomes[j].RowNumber
	})

	report := &Report{ProjectID: projectID, Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Status == StatusCreated {
			report.CreatedCount++
		} else {
			report.FailedCount++
		}
	}
	return report
}

func skippedOutcome(rowNumber int, summary, reason string) RowOutcome {
	return RowOutcome{
		RowNumber: rowNumber,
		Status:    StatusSkipped,
		Summary:   summary,
		Reason:    reason,
	}
}

func createdOutcome(rowNumber int, summary, issueKey string) RowOutcome {
	return RowOutcome{
		RowNumber: rowNumber,
		Status:    StatusCreated,
		Summary:   summary,
		IssueKey:  issueKey,
	}
}

func failedOutcome(rowNumber int, summary string, messages []string) RowOutcome {
	reason := fmt.Sprintf("row %d (%q): rejected by tracker", rowNumber, summary)
	if len(messages) > 0 {
		reason = fmt.Sprintf("row %d (%q): %s", rowNumber, summary, strings.Join(messages, "; "))
	}
	return RowOutcome{
		RowNumber: rowNumber,
		Status:    StatusFailed,
		Summary:   summary,
		Reason:    reason,
	}
}
