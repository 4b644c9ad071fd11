package models

import "time"

// AutomationTarget describes the CAD application the launcher drives.
type AutomationTarget struct {
	ExePath     string
	WindowTitle string // regular expression matched anywhere in the window title
	RunKey      string // brace notation, e.g. "{F5}"
}

// ProcessHandle identifies a spawned application.
//
// The launcher never waits on or kills the process behind a handle. If automation
// fails after the spawn, the application keeps running on its own.
type ProcessHandle struct {
	PID       int
	Exe       string
	Args      []string
	StartedAt time.Time
}
