package core

import "time"

// Store defines the interface for study state persistence: the model alias
// store and the run history.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Model alias operations
	SaveModel(model *Model) error
	GetModel(id string) (*Model, error)
	ListModels() ([]*Model, error)
	DeleteModel(id string) error

	// Run operations
	CreateRun(template string, caseCount int) (*Run, error)
	GetRun(id string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	GetLatestRun() (*Run, error)

	// Case run operations
	RecordCaseRun(cr *CaseRun) error
	UpdateCaseRun(id string, status CaseStatus, calculator, command, errMsg string) error
	GetCaseRunsForRun(runID string) ([]*CaseRun, error)
}

// RunStatus represents the status of a whole study run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run represents one execution of a study.
type Run struct {
	ID          string
	Template    string
	CaseCount   int
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// CaseRun records the terminal state of one case within a run.
type CaseRun struct {
	ID         string
	RunID      string
	CaseIndex  int
	Label      string
	Status     CaseStatus
	Calculator string
	Command    string
	Error      string
	StartedAt  time.Time
	EndedAt    *time.Time
}
