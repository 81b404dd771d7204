package engine

import "errors"

// State is the bot lifecycle state
type State string

const (
	StateIdle    State = "IDLE"
	StateRunning State = "RUNNING"
	StateStopped State = "STOPPED"
	StateCrashed State = "CRASHED"
)

var (
	// ErrAlreadyRunning is returned by Start on a running bot
	ErrAlreadyRunning = errors.New("engine: bot already running")

	// ErrNotRunning is returned by Stop on a bot that is not running
	ErrNotRunning = errors.New("engine: bot not running")
)
