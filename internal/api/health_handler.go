package api

import (
	"context"
	"net/http"
	"time"
)

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HandleHealth reports liveness plus the state of each dependency. The
// checks run concurrently so one slow dependency cannot stall the rest.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	type result struct {
		name string
		err  error
	}

	checks := []struct {
		name string
		run  func(context.Context) error
	}{
		{"tracker", h.checkTracker},
		{"redis", h.checkRedis},
		{"database", h.checkDatabase},
	}

	ch := make(chan result, len(checks))
	for _, c := range checks {
		c := c
		go func() { ch <- result{c.name, c.run(ctx)} }()
	}

	status := healthStatus{Status: "ok", Checks: make(map[string]string, len(checks))}
	for range checks {
		res := <-ch
		if res.err != nil {
			status.Checks[res.name] = res.err.Error()
			status.Status = "degraded"
		} else {
			status.Checks[res.name] = "ok"
		}
	}

	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (h *Handlers) checkTracker(ctx context.Context) error {
	if h.tracker == nil {
		return nil
	}
	return h.tracker.Ping(ctx)
}

func (h *Handlers) checkRedis(ctx context.Context) error {
	if h.jobs == nil {
		return nil
	}
	return h.jobs.rdb.Ping(ctx).Err()
}

func (h *Handlers) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil
	}
	return h.db.PingContext(ctx)
}
