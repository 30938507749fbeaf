package importer

import "fmt"

// ParseError means the uploaded file could not be decoded into rows.
// Fatal: the import aborts before any network call.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parsing import file: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// ConfigFetchError means the project's issue-type schema could not be
// retrieved. Fatal: the import aborts before any row processing.
type ConfigFetchError struct {
	ProjectID string
	Err       error
}

func (e *ConfigFetchError) Error() string {
	return fmt.Sprintf("fetching issue types for project %s: %v", e.ProjectID, e.Err)
}
func (e *ConfigFetchError) Unwrap() error { return e.Err }

// SubmissionError means the bulk-create call itself failed. Fatal for the
// whole batch: no issues were created.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("bulk create failed: %v", e.Err) }
func (e *SubmissionError) Unwrap() error { return e.Err }
