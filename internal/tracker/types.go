package tracker

// IssueType describes one issue type permitted in a project.
// The set is fetched per project; type names are only meaningful
// within the project they were fetched for.
type IssueType struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subtask bool   `json:"subtask"`
}

// User is a tracker account returned by user search
type User struct {
	AccountID    string `json:"accountId"`
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
	Active       bool   `json:"active"`
}

// Project is a tracker project summary
type Project struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// IssuePayload is one issue-creation element in the shape the tracker's
// create API expects. Fields is keyed by tracker field key (summary,
// issuetype, customfield_*, ...). Never mutated after construction.
type IssuePayload struct {
	Fields map[string]interface{} `json:"fields"`
}

// BulkCreateRequest is the body of POST /issue/bulk
type BulkCreateRequest struct {
	IssueUpdates []IssuePayload `json:"issueUpdates"`
}

// CreatedIssue identifies one issue the tracker accepted from a bulk create
type CreatedIssue struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

// ElementError is a per-element rejection within an otherwise successful
// bulk create. FailedElementNumber indexes into the submitted issueUpdates
// array, not any caller-side numbering.
type ElementError struct {
	Status              int          `json:"status"`
	FailedElementNumber int          `json:"failedElementNumber"`
	ElementErrors       ErrorDetails `json:"elementErrors"`
}

// ErrorDetails carries the tracker's error messages for one element
type ErrorDetails struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}

// BulkCreateResponse is the body of a transport-level-successful bulk create.
// Issues holds created issues in submission order with rejected elements
// removed; Errors holds the rejections.
type BulkCreateResponse struct {
	Issues []CreatedIssue `json:"issues"`
	Errors []ElementError `json:"errors"`
}

// Messages flattens the element error details into human-readable strings
func (e ElementError) Messages() []string {
	msgs := append([]string{}, e.ElementErrors.ErrorMessages...)
	for field, msg := range e.ElementErrors.Errors {
		msgs = append(msgs, field+": "+msg)
	}
	return msgs
}

// Document is the tracker's structured-document format for rich text
// fields (descriptions). Plain text maps to a single paragraph.
type Document struct {
	Type    string       `json:"type"`
	Version int          `json:"version"`
	Content []DocContent `json:"content"`
}

// DocContent is one block-level node of a Document
type DocContent struct {
	Type    string    `json:"type"`
	Content []DocText `json:"content,omitempty"`
}

// DocText is one inline text node
type DocText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TextDocument wraps plain text in the structured-document format
func TextDocument(text string) Document {
	return Document{
		Type:    "doc",
		Version: 1,
		Content: []DocContent{
			{
				Type: "paragraph",
				Content: []DocText{
					{Type: "text", Text: text},
				},
			},
		},
	}
}
