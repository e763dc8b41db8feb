package queue

import (
	"fmt"
	"strings"

	"github.com/Julianhima91/himatrips-backend/internal/domain"
)

// FetchTaskMessage is the broker payload for one provider fetch task.
type FetchTaskMessage struct {
	TaskID   string              `json:"taskId"`
	BatchID  string              `json:"batchId"`
	Kind     domain.TaskKind     `json:"kind"`
	Source   domain.FlightSource `json:"source,omitempty"`
	Category domain.Category     `json:"category"`
	Attempt  int                 `json:"attempt"`
}

func (m FetchTaskMessage) Validate() error {
	if strings.TrimSpace(m.TaskID) == "" {
		return fmt.Errorf("taskId is required")
	}
	if strings.TrimSpace(m.BatchID) == "" {
		return fmt.Errorf("batchId is required")
	}
	if !m.Kind.IsValid() {
		return fmt.Errorf("invalid task kind %q", m.Kind)
	}
	if !m.Category.IsValid() {
		return fmt.Errorf("invalid category %q", m.Category)
	}
	if m.Kind != domain.TaskHotels && !m.Source.IsValid() {
		return fmt.Errorf("invalid source %q for kind %q", m.Source, m.Kind)
	}
	return nil
}
