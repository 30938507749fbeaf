package importer

import (
	"context"
	"strings"
	"sync"

	"github.com/meridianhq/issueboard/internal/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// ResolvedUser is a tracker account matched to a spreadsheet email
type ResolvedUser struct {
	AccountID string
	Email     string
}

// UserResolver resolves email addresses to tracker account IDs. Lookups
// are memoized per import keyed by lowercased email, so identical emails
// across rows cost one search. "Could not resolve" is not an error:
// callers decide whether an unresolved reference matters for their row.
type UserResolver struct {
	client      TrackerAPI
	maxResults  int
	concurrency int

	mu    sync.Mutex
	cache map[string]*userEntry
}

type userEntry struct {
	once sync.Once
	user *ResolvedUser // nil when unresolved
}

// NewUserResolver creates a resolver with the given search fan-out bound
func NewUserResolver(client TrackerAPI, maxResults, concurrency int) *UserResolver {
	if maxResults <= 0 {
		maxResults = 5
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	return &UserResolver{
		client:      client,
		maxResults:  maxResults,
		concurrency: concurrency,
		cache:       make(map[string]*userEntry),
	}
}

// Prefetch resolves all distinct emails concurrently, bounded by the
// resolver's concurrency limit. Individual lookup failures are recorded
// as unresolved, never surfaced; Prefetch itself cannot fail.
func (r *UserResolver) Prefetch(ctx context.Context, emails []string) {
	seen := make(map[string]bool, len(emails))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, email := range emails {
		key := normalizeEmail(email)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		g.Go(func() error {
			r.Resolve(gctx, key)
			return nil
		})
	}
	g.Wait()
}

// Resolve returns the account for an email, or nil when the email is
// syntactically invalid, unknown to the tracker, or the search failed.
func (r *UserResolver) Resolve(ctx context.Context, email string) *ResolvedUser {
	key := normalizeEmail(email)
	if key == "" {
		return nil
	}

	r.mu.Lock()
	entry, ok := r.cache[key]
	if !ok {
		entry = &userEntry{}
		r.cache[key] = entry
	}
	r.mu.Unlock()

	entry.once.Do(func() {
		entry.user = r.lookup(ctx, key)
	})
	return entry.user
}

func (r *UserResolver) lookup(ctx context.Context, email string) *ResolvedUser {
	users, err := r.client.SearchUsers(ctx, email, r.maxResults)
	if err != nil {
		logger.Warn("user search failed", "email", email, "error", err)
		return nil
	}
	for _, u := range users {
		if strings.EqualFold(u.EmailAddress, email) {
			return &ResolvedUser{AccountID: u.AccountID, Email: u.EmailAddress}
		}
	}
	logger.Debug("no account matched email", "email", email)
	return nil
}

// normalizeEmail lowercases and trims; returns "" for values that cannot
// be an email address so they never reach the search endpoint.
func normalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return ""
	}
	if !strings.Contains(email[at:], ".") {
		return ""
	}
	return email
}
