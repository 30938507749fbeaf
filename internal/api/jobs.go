package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/meridianhq/issueboard/internal/importer"
	"github.com/redis/go-redis/v9"
)

var ErrJobNotFound = errors.New("import job not found")

// Async job states
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

const jobTTL = 24 * time.Hour

// JobState tracks one async import run. Completed jobs carry the full
// report; failed jobs carry the fatal error string.
type JobState struct {
	ID        string           `json:"id"`
	ProjectID string           `json:"project_id"`
	Filename  string           `json:"filename"`
	Status    string           `json:"status"`
	Error     string           `json:"error,omitempty"`
	Report    *importer.Report `json:"report,omitempty"`
	StartedAt time.Time        `json:"started_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// JobStore keeps async import job state in Redis with a 24h TTL
type JobStore struct {
	rdb *redis.Client
}

// NewJobStore creates a Redis-backed job store
func NewJobStore(rdb *redis.Client) *JobStore {
	return &JobStore{rdb: rdb}
}

func jobKey(id string) string { return "import:job:" + id }

// Put writes the job state, refreshing its TTL
func (s *JobStore) Put(ctx context.Context, state JobState) error {
	state.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding job state: %w", err)
	}
	if err := s.rdb.Set(ctx, jobKey(state.ID), data, jobTTL).Err(); err != nil {
		return fmt.Errorf("storing job state: %w", err)
	}
	return nil
}

// Get reads the job state; ErrJobNotFound after expiry or for unknown IDs
func (s *JobStore) Get(ctx context.Context, id string) (*JobState, error) {
	data, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading job state: %w", err)
	}

	var state JobState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decoding job state: %w", err)
	}
	return &state, nil
}
