package core

// InputDirName is the subdirectory of a case directory holding the
// compiled input tree.
const InputDirName = "input"

// CaseStatus represents the lifecycle state of a single case.
type CaseStatus string

// Case status constants.
const (
	CaseStatusPending CaseStatus = "pending"
	CaseStatusRunning CaseStatus = "running"
	CaseStatusDone    CaseStatus = "done"
	CaseStatusFailed  CaseStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s CaseStatus) Terminal() bool {
	return s == CaseStatusDone || s == CaseStatusFailed
}

// Case is one element of the Cartesian product of all list-valued
// variables, paired with all scalar variables. A case owns exactly one
// compiled copy of the template and exactly one output directory.
type Case struct {
	// Index is the position in case-generation order, starting at 0.
	Index int

	// Label is the deterministic identifier derived from the varying
	// variable assignment, e.g. "width=0.1,height=2".
	Label string

	// Vars holds the fully resolved scalar assignment for this case,
	// including constant variables.
	Vars map[string]any

	// Dir is the case's directory under the results directory.
	Dir string

	// InputPath is the compiled input inside Dir (file or directory).
	InputPath string

	// Execution state, owned by the dispatcher.
	Status     CaseStatus
	Calculator string // URI of the calculator that produced the result
	Command    string // exact invocation used
	Error      string // last error message, empty on success
}
