package run

import "time"

// Run status values
const (
	StatusPlanned   = "planned"   // planned, nothing executed yet
	StatusFailed    = "failed"    // aborted, configuration not updated
	StatusPartial   = "partial"   // aborted, completed conversions committed
	StatusCommitted = "committed" // every task converted and committed
)

// TaskRecord is the persisted view of one conversion task
type TaskRecord struct {
	Source       string `json:"source"`
	SourceFormat string `json:"source_format"`
	Destination  string `json:"destination"`
	TargetFormat string `json:"target_format"`
	OwnerID      int    `json:"owner_id"`
	GroupID      int    `json:"group_id"`
	Permissions  uint32 `json:"permissions"`
	Completed    bool   `json:"completed"`
}

// Record describes one conversion run of a domain
type Record struct {
	ID           string       `json:"id"`
	Domain       string       `json:"domain"`
	URI          string       `json:"uri"`
	TargetFormat string       `json:"target_format"`
	Status       string       `json:"status"`
	Tasks        []TaskRecord `json:"tasks"`
	Removed      []string     `json:"removed,omitempty"`
	Error        string       `json:"error,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   *time.Time   `json:"finished_at,omitempty"`
}

// Completed returns the number of completed tasks
func (r *Record) Completed() int {
	n := 0
	for _, t := range r.Tasks {
		if t.Completed {
			n++
		}
	}
	return n
}
