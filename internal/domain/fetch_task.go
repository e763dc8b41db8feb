package domain

import (
	"fmt"
	"strings"
	"time"
)

// TaskKind identifies what a fetch task retrieves.
type TaskKind string

const (
	TaskFlights   TaskKind = "FLIGHTS"
	TaskHotels    TaskKind = "HOTELS"
	TaskPriceGrid TaskKind = "PRICE_GRID"
)

func (k TaskKind) String() string { return string(k) }

func (k TaskKind) IsValid() bool {
	switch k {
	case TaskFlights, TaskHotels, TaskPriceGrid:
		return true
	}
	return false
}

func ParseTaskKindFromString(s string) (TaskKind, error) {
	k := TaskKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid task kind %q", ErrValidation, s)
	}
	return k, nil
}

// TaskStatus is the lifecycle state of one fetch task.
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "QUEUED"
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"
	TaskStatusFailed    TaskStatus = "FAILED"
)

func (s TaskStatus) String() string { return string(s) }

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusRunning, TaskStatusSucceeded, TaskStatusFailed:
		return true
	}
	return false
}

// FetchTask is one provider call owed to a batch: which kind of data, from
// which source, plus retry bookkeeping. A task failing terminally does not
// fail the batch as long as a sibling source can still answer the same leg.
type FetchTask struct {
	ID           string
	BatchID      string
	Kind         TaskKind
	Source       FlightSource
	Status       TaskStatus
	AttemptCount int
	MaxAttempts  int
	LastError    *string
	NextRetryAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (t *FetchTask) Validate() error {
	if t.BatchID == "" {
		return fmt.Errorf("%w: batch id is required", ErrValidation)
	}
	if !t.Kind.IsValid() {
		return fmt.Errorf("%w: invalid task kind %q", ErrValidation, t.Kind)
	}
	if t.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1", ErrValidation)
	}
	return nil
}
