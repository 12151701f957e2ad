// internal/sched/schedulerEvent.go

package sched

import (
	"time"
)

// StatusKind represents the type of scheduler event
type StatusKind int

const (
	StatusAdd StatusKind = iota
	StatusCarry
	StatusRun
	StatusFail
	StatusDone
	StatusCancel
)

// StatusEvent is emitted when a stage carries or a task changes state
type StatusEvent struct {
	Time   time.Time
	Kind   StatusKind
	Stage  string
	TaskID TaskID
	Count  uint64 // ticks emitted by Stage, or runs of TaskID
	Total  uint32 // root ticks fed into the chain when the event happened
	Err    error
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusAdd:
		return "Add"
	case StatusCarry:
		return "Carry"
	case StatusRun:
		return "Run"
	case StatusFail:
		return "Fail"
	case StatusDone:
		return "Done"
	case StatusCancel:
		return "Cancel"
	default:
		return "Unknown"
	}
}
