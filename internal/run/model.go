package run

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID identifies a run. Generated by the store, never reused.
type ID = uuid.UUID

// NewRun is the durable record of an accepted run.
type NewRun struct {
	ID      ID
	Seconds uint64
}

// Status is the lifecycle state of a persisted run.
type Status int16

const (
	StatusInProgress Status = 0
	StatusFinished   Status = 1
)

// ParseStatusCode converts the persisted numeric code into a Status.
func ParseStatusCode(code int16) (Status, error) {
	switch Status(code) {
	case StatusInProgress, StatusFinished:
		return Status(code), nil
	default:
		return 0, fmt.Errorf("unknown run status code %d", code)
	}
}

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "InProgress"
	case StatusFinished:
		return "Finished"
	default:
		return fmt.Sprintf("Status(%d)", int16(s))
	}
}

// MarshalJSON encodes s by name.
func (s Status) MarshalJSON() ([]byte, error) {
	switch s {
	case StatusInProgress, StatusFinished:
		return json.Marshal(s.String())
	default:
		return nil, fmt.Errorf("cannot marshal %s", s)
	}
}

// UnmarshalJSON accepts only the known status names.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "InProgress":
		*s = StatusInProgress
	case "Finished":
		*s = StatusFinished
	default:
		return fmt.Errorf("unknown run status %q", name)
	}
	return nil
}

// Run is the queryable projection of a run. Counters stay zero until the
// terminal update is written.
type Run struct {
	ID                       ID     `json:"id"`
	Status                   Status `json:"status"`
	SuccessfulResponsesCount uint64 `json:"successful_responses_count"`
	Sum                      uint64 `json:"sum"`
}

// Job is the unit of work handed to the worker pool.
type Job struct {
	ID       ID
	Duration time.Duration
}

// JobResult is the aggregate produced by executing a Job.
type JobResult struct {
	ID                  ID
	SuccessfulResponses uint64
	ValueSum            uint64
}

// Terminal builds the finished record written after execution.
func (r JobResult) Terminal() Run {
	return Run{
		ID:                       r.ID,
		Status:                   StatusFinished,
		SuccessfulResponsesCount: r.SuccessfulResponses,
		Sum:                      r.ValueSum,
	}
}

// Outcome is the result of one upstream call: either Ok with a value or
// Err with a message. OK discriminates the two.
type Outcome struct {
	OK    bool
	Value uint32
	Error string
}

// Ok returns a successful outcome.
func Ok(value uint32) Outcome {
	return Outcome{OK: true, Value: value}
}

// Err returns a failed outcome.
func Err(msg string) Outcome {
	return Outcome{Error: msg}
}

func (o Outcome) String() string {
	if o.OK {
		return fmt.Sprintf("Ok{value: %d}", o.Value)
	}
	return fmt.Sprintf("Err{error: %q}", o.Error)
}
