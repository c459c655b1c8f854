package domain

import (
	"errors"
)

// Priority represents job priority level.
type Priority int

const (
	// PriorityImmediate is for jobs that must run in the next cycle.
	PriorityImmediate Priority = 0

	// PriorityHigh is for urgent jobs that should be processed first.
	PriorityHigh Priority = 1

	// PriorityNormal is for standard jobs (default).
	PriorityNormal Priority = 2

	// PriorityLow is for background jobs that can wait.
	PriorityLow Priority = 3

	// priorityStrNormal is the string representation of normal priority.
	priorityStrNormal = "normal"
)

// String returns the string representation of a priority.
func (p Priority) String() string {
	switch p {
	case PriorityImmediate:
		return "immediate"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return priorityStrNormal
	case PriorityLow:
		return "low"
	default:
		return priorityStrNormal
	}
}

// ParsePriority converts a queue priority string to a Priority.
// Unknown or empty values fall back to normal.
func ParsePriority(value string) (Priority, error) {
	switch value {
	case "immediate":
		return PriorityImmediate, nil
	case "high":
		return PriorityHigh, nil
	case priorityStrNormal, "":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	default:
		return PriorityNormal, errors.New("invalid priority: must be immediate, high, normal, or low")
	}
}

// Weight returns a numeric weight for the priority (lower = more important).
func (p Priority) Weight() int {
	return int(p)
}

// IsValid returns true if the priority is a valid value.
func (p Priority) IsValid() bool {
	return p >= PriorityImmediate && p <= PriorityLow
}

// AllPriorities returns all priority levels in order of precedence.
func AllPriorities() []Priority {
	return []Priority{PriorityImmediate, PriorityHigh, PriorityNormal, PriorityLow}
}
