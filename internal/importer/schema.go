package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridianhq/issueboard/internal/tracker"
)

// Schema is the set of issue types valid for one project, resolved once
// per import and read-only afterwards. Lookup is by trimmed,
// case-insensitive type name.
type Schema struct {
	byName map[string]tracker.IssueType
	names  []string
}

// ResolveSchema fetches the project's issue types and builds the lookup
// table. An empty set is a configuration failure: a project must have at
// least one issue type for creation to be possible.
func ResolveSchema(ctx context.Context, client TrackerAPI, projectID string) (*Schema, error) {
	types, err := client.GetProjectIssueTypes(ctx, projectID)
	if err != nil {
		return nil, &ConfigFetchError{ProjectID: projectID, Err: err}
	}
	if len(types) == 0 {
		return nil, &ConfigFetchError{ProjectID: projectID, Err: fmt.Errorf("project has no issue types")}
	}

	s := &Schema{
		byName: make(map[string]tracker.IssueType, len(types)),
		names:  make([]string, 0, len(types)),
	}
	for _, t := range types {
		key := strings.ToLower(strings.TrimSpace(t.Name))
		if _, seen := s.byName[key]; seen {
			continue
		}
		s.byName[key] = t
		s.names = append(s.names, t.Name)
	}
	return s, nil
}

// Lookup finds an issue type by name, case-insensitively
func (s *Schema) Lookup(name string) (tracker.IssueType, bool) {
	t, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// TypeNames returns the valid type names in the order the tracker
// returned them. Used in skip reasons so users can self-correct.
func (s *Schema) TypeNames() []string {
	return s.names
}
