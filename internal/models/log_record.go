package models

import "time"

// Severity classifies a log record.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// SystemActor is the username recorded on entries written by the engine itself.
const SystemActor = "SYSTEM"

// LogRecord is an immutable entry in the attempt log. IDs are UUIDv7 so
// ordering by ID follows insertion order.
type LogRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	User      string    `json:"user"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Country   string    `json:"country"`
}
