package core

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the whole health check, all probes included.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is a dependency check (database, Redis) reported by /health.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthProbeFunc adapts a function to the HealthProbe interface.
type HealthProbeFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) error
}

func (p HealthProbeFunc) Name() string                    { return p.ProbeName }
func (p HealthProbeFunc) Check(ctx context.Context) error { return p.Fn(ctx) }

type componentStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

type probeResult struct {
	name    string
	err     error
	latency time.Duration
}

// HandleHealth runs every probe concurrently under a shared deadline. It
// answers 200 when all probes pass and 503 when any fails or times out.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy"}
	if s.Config != nil {
		resp.Version = s.Config.Build.Version
	}
	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	// Buffered so late probes never block after the handler returns.
	results := make(chan probeResult, len(s.HealthProbes))
	for _, probe := range s.HealthProbes {
		go func(p HealthProbe) {
			start := time.Now()
			err := runProbe(ctx, p)
			results <- probeResult{name: p.Name(), err: err, latency: time.Since(start)}
		}(probe)
	}

	completed := make(map[string]probeResult, len(s.HealthProbes))
collect:
	for range s.HealthProbes {
		select {
		case res := <-results:
			completed[res.name] = res
		case <-ctx.Done():
			break collect
		}
	}

	resp.Components = make(map[string]componentStatus, len(s.HealthProbes))
	for _, probe := range s.HealthProbes {
		name := probe.Name()
		res, ok := completed[name]
		switch {
		case !ok:
			resp.Status = "unhealthy"
			resp.Components[name] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		case res.err != nil:
			resp.Status = "unhealthy"
			resp.Components[name] = componentStatus{Status: "unhealthy", Message: res.err.Error(), LatencyMS: res.latency.Milliseconds()}
		default:
			resp.Components[name] = componentStatus{Status: "healthy", LatencyMS: res.latency.Milliseconds()}
		}
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}

func runProbe(ctx context.Context, p HealthProbe) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("probe panicked: %v", rvr)
		}
	}()
	return p.Check(ctx)
}
