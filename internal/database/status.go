package database

import "strings"

// Status is the confinement mode of a profile or a confined process.
type Status string

const (
	StatusEnforce    Status = "enforce"
	StatusComplain   Status = "complain"
	StatusKill       Status = "kill"
	StatusPrompt     Status = "prompt"
	StatusUnconfined Status = "unconfined"
	StatusDisabled   Status = "disabled"
	StatusUnknown    Status = "unknown"
)

// Statuses lists every recognized status, sentinel last.
var Statuses = []Status{
	StatusEnforce,
	StatusComplain,
	StatusKill,
	StatusPrompt,
	StatusUnconfined,
	StatusDisabled,
	StatusUnknown,
}

// ParseStatus maps a collector status string onto a Status. Anything outside
// the recognized set becomes StatusUnknown; it never fails.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusEnforce:
		return StatusEnforce
	case StatusComplain:
		return StatusComplain
	case StatusKill:
		return StatusKill
	case StatusPrompt:
		return StatusPrompt
	case StatusUnconfined:
		return StatusUnconfined
	case StatusDisabled:
		return StatusDisabled
	default:
		return StatusUnknown
	}
}

func (s Status) String() string { return string(s) }
