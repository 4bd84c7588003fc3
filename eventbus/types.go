package eventbus

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event types, one per way a task can finish.
const (
	TypeSolved    = "turnstile.solved"
	TypeExhausted = "turnstile.exhausted"
	TypeFailed    = "turnstile.failed"
)

// Event reports a finished solve task. It never carries the token.
type Event struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	Source string    `json:"source"`
	Time   time.Time `json:"time"`

	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	URL     string `json:"url,omitempty"`
	SiteKey string `json:"sitekey,omitempty"`
	// ElapsedTime is set when the solve ran to a result.
	ElapsedTime *float64 `json:"elapsed_time,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// NewEventID returns "evt_<yyyymmdd>_<16 hex>" so ids sort by day.
func NewEventID(t time.Time) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "evt_" + t.UTC().Format("20060102") + "_" + hex[:16]
}

// Validate reports the first required field that is empty.
func (e Event) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: id", ErrInvalidEvent)
	case e.Type == "":
		return fmt.Errorf("%w: type", ErrInvalidEvent)
	case e.Source == "":
		return fmt.Errorf("%w: source", ErrInvalidEvent)
	case e.TaskID == "":
		return fmt.Errorf("%w: task_id", ErrInvalidEvent)
	case e.Time.IsZero():
		return fmt.Errorf("%w: time", ErrInvalidEvent)
	}
	return nil
}
