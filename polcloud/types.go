package polcloud

import (
	"errors"
	"fmt"
	"strings"
)

// CompletedState is the state text reported by a job that finished.
const CompletedState = "JobState.completed"

// Observer is notified while an upload streams.
type Observer interface {
	// Progress receives the cumulative number of bytes sent so far.
	Progress(sent int64)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(sent int64)

func (f ObserverFunc) Progress(sent int64) { f(sent) }

type SubmitRequest struct {
	// Size is the number of nodes the job runs on.
	Size int
	// WallClock is the execution budget, e.g. "02:00".
	WallClock string
	// DeletePool asks the backend to tear the pool down once the job ends.
	DeletePool bool
}

// submitPayload is the wire form of a SubmitRequest.
type submitPayload struct {
	WallClock  string `json:"wall_clock"`
	Size       int    `json:"size"`
	PoolName   string `json:"pool_name"`
	JobSpec    string `json:"job_spec"`
	DeletePool bool   `json:"delete_pool,omitempty"`
}

type createPoolPayload struct {
	Size int `json:"size"`
}

// JobSpec is a job specification document. Its content is opaque to the
// client apart from the input bundle reference.
type JobSpec map[string]any

// Inputs returns the input bundle id the spec refers to.
func (s JobSpec) Inputs() (string, error) {
	v, ok := s["inputs"]
	if !ok {
		return "", errors.New("job spec has no inputs")
	}
	id, ok := v.(string)
	if !ok || id == "" {
		return "", fmt.Errorf("job spec inputs is not an id: %v", v)
	}
	return id, nil
}

// PoolInfo is the metadata the backend reports for a pool.
type PoolInfo map[string]any

// Ready reports the is_ready flag. A missing or non-boolean flag is an error.
func (p PoolInfo) Ready() (bool, error) {
	v, ok := p["is_ready"]
	if !ok {
		return false, errors.New("pool info has no is_ready flag")
	}
	ready, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("pool info is_ready is not a boolean: %v", v)
	}
	return ready, nil
}

// StatusError is returned for any response outside the 2xx range.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, body)
}
