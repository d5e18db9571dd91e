package domain

import "time"

// RunStatus is the outcome of one pipeline run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
	// RunSkipped marks a trigger that fired while the same pipeline was still running.
	RunSkipped RunStatus = "skipped"
)

// Run triggers.
const (
	TriggerStartup  = "startup"
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// Run is the history entry of one pipeline execution.
type Run struct {
	ID         string    `json:"id"`
	Pipeline   string    `json:"pipeline"`
	Trigger    string    `json:"trigger"`
	Status     RunStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Dataset is the local input file the run read.
	Dataset  string `json:"dataset,omitempty"`
	Fetched  bool   `json:"fetched"`
	Artifact string `json:"artifact,omitempty"`
	// Items counts joined features for areal maps and points for point maps.
	Items     int    `json:"items"`
	Matched   int    `json:"matched"`
	Unmatched int    `json:"unmatched"`
	Error     string `json:"error,omitempty"`
}

// Duration of the run.
func (r Run) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// ArtifactEvent announces a freshly rendered map document.
type ArtifactEvent struct {
	RunID      string    `json:"run_id"`
	Pipeline   string    `json:"pipeline"`
	Kind       string    `json:"kind"`
	Route      string    `json:"route"`
	Artifact   string    `json:"artifact"`
	SideFiles  []string  `json:"side_files,omitempty"`
	Dataset    string    `json:"dataset"`
	Fetched    bool      `json:"fetched"`
	Items      int       `json:"items"`
	Unmatched  []string  `json:"unmatched,omitempty"`
	RenderedAt time.Time `json:"rendered_at"`
}
