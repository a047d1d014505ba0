package statuses

import (
	"strings"
	"time"
)

// Well-known names the order engine depends on.
const (
	Pending    = "Pending"
	Processing = "Processing"
	Completed  = "Completed"
	Canceled   = "Canceled"
)

var WellKnown = []string{Pending, Processing, Completed, Canceled}

type Status struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// Is compares the status name case-insensitively.
func (s Status) Is(name string) bool { return strings.EqualFold(s.Name, name) }
