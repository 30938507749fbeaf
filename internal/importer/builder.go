package importer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/meridianhq/issueboard/internal/ingest"
	"github.com/meridianhq/issueboard/internal/tracker"
)

// Recognized spreadsheet columns
const (
	ColSummary     = "Summary"
	ColIssueType   = "Issue Type"
	ColDescription = "Description"
	ColAssignee    = "Assignee (Email)"
	ColReporter    = "Reporter (Email)"
	ColStoryPoints = "Story Points"
	ColParentKey   = "Parent Key"
)

const epicTypeName = "epic"

// rowResult is the validation output for one row: exactly one of payload
// (row is valid, carry its creation payload) or skip (terminal outcome)
// is set.
type rowResult struct {
	rowNumber int
	summary   string
	payload   *tracker.IssuePayload
	skip      *RowOutcome
}

// buildRow validates one row against the resolved schema and constructs
// its creation payload. Validation checks run in a fixed order and the
// first failure decides the row's skip reason.
func (s *Service) buildRow(row ingest.Row, projectID string, schema *Schema, users *userLookups) rowResult {
	summary := row.Get(ColSummary)
	typeName := row.Get(ColIssueType)

	if summary == "" {
		return skipRow(row.Number, summary, fmt.Sprintf("row %d: %s is required", row.Number, ColSummary))
	}
	if typeName == "" {
		return skipRow(row.Number, summary, fmt.Sprintf("row %d: %s is required", row.Number, ColIssueType))
	}

	issueType, ok := schema.Lookup(typeName)
	if !ok {
		return skipRow(row.Number, summary, fmt.Sprintf(
			"row %d: unknown issue type %q (valid types: %s)",
			row.Number, typeName, strings.Join(schema.TypeNames(), ", ")))
	}

	parentKey := row.Get(ColParentKey)
	if issueType.Subtask && parentKey == "" {
		return skipRow(row.Number, summary, fmt.Sprintf(
			"row %d: issue type %q is a sub-task and requires a %s",
			row.Number, issueType.Name, ColParentKey))
	}

	fields := map[string]interface{}{
		"project":   map[string]string{"id": projectID},
		"summary":   summary,
		"issuetype": map[string]string{"id": issueType.ID},
	}

	if desc := row.Get(ColDescription); desc != "" {
		fields["description"] = tracker.TextDocument(desc)
	}

	if assignee := users.assignee(row); assignee != nil {
		fields["assignee"] = map[string]string{"id": assignee.AccountID}
	}
	if reporter := users.reporter(row); reporter != nil {
		fields["reporter"] = map[string]string{"id": reporter.AccountID}
	}

	if raw := row.Get(ColStoryPoints); raw != "" {
		if points, err := strconv.ParseFloat(raw, 64); err == nil {
			fields[s.cfg.StoryPointsField] = points
		}
	}

	if issueType.Subtask {
		fields["parent"] = map[string]string{"key": parentKey}
	}

	// Epics need a separate short display name; the tracker rejects epic
	// creation without it, so it is synthesized from the summary.
	if strings.EqualFold(strings.TrimSpace(issueType.Name), epicTypeName) {
		fields[s.cfg.EpicNameField] = summary
	}

	return rowResult{
		rowNumber: row.Number,
		summary:   summary,
		payload:   &tracker.IssuePayload{Fields: fields},
	}
}

func skipRow(rowNumber int, summary, reason string) rowResult {
	outcome := skippedOutcome(rowNumber, summary, reason)
	return rowResult{rowNumber: rowNumber, summary: summary, skip: &outcome}
}

// userLookups binds the shared resolver to one row's optional user
// columns. An unresolved assignee or reporter omits the field rather than
// failing the row; a missing reporter column falls back to the account
// performing the import.
type userLookups struct {
	resolve       func(email string) *ResolvedUser
	importerEmail string
}

func (u *userLookups) assignee(row ingest.Row) *ResolvedUser {
	return u.resolve(row.Get(ColAssignee))
}

func (u *userLookups) reporter(row ingest.Row) *ResolvedUser {
	email := row.Get(ColReporter)
	if email == "" {
		email = u.importerEmail
	}
	return u.resolve(email)
}

// referencedEmails collects every email the row set can reference,
// including the importing user's own address (the reporter fallback), so
// the resolver can prefetch them all in one concurrent pass.
func referencedEmails(rows []ingest.Row, importerEmail string) []string {
	emails := []string{importerEmail}
	for _, row := range rows {
		if e := row.Get(ColAssignee); e != "" {
			emails = append(emails, e)
		}
		if e := row.Get(ColReporter); e != "" {
			emails = append(emails, e)
		}
	}
	return emails
}
