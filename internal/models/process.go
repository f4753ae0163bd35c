package models

import "time"

// ProcessInfo is the introspection view of a tracked operation
type ProcessInfo struct {
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
}

// Process name prefixes. The full name is "<kind>:<account id>" so the
// at-most-one-in-flight rule holds per account per operation kind.
const (
	ProcessKindRun      = "run"
	ProcessKindRegister = "register"
	ProcessKindImport   = "import"
)

// ProcessName builds the logical key for a tracked operation
func ProcessName(kind, target string) string {
	return kind + ":" + target
}
