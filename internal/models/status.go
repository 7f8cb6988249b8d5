package models

// BuildState is the lifecycle state of the index for one document
type BuildState int

const (
	StateUninitialized BuildState = iota
	StateBuilding
	StateReady
	StateFailed
)

func (s BuildState) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// BuildStatus is reported to the presentation layer after a document load
type BuildStatus struct {
	State    BuildState
	Document Document
	Message  string
	Err      error
}
