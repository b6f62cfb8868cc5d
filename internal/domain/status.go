package domain

import (
	"fmt"
	"strings"
)

// Status is the queue state of a research request. Values are stored verbatim.
type Status string

const (
	StatusInQueue    Status = "in queue"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"

	researchingPrefix = "researching "
)

// Phase orders the coarse steps of the request state machine.
type Phase int

const (
	PhaseQueued Phase = iota
	PhaseProcessing
	PhaseResearching
	PhaseCompleted
)

// ResearchingStatus renders the progress status for done out of total new documents.
func ResearchingStatus(done, total int) Status {
	return Status(fmt.Sprintf("researching %d/%d", done, total))
}

// Phase returns the coarse phase of s and whether s is a recognised status.
func (s Status) Phase() (Phase, bool) {
	switch s {
	case StatusInQueue:
		return PhaseQueued, true
	case StatusProcessing:
		return PhaseProcessing, true
	case StatusCompleted:
		return PhaseCompleted, true
	}
	if _, _, ok := s.Progress(); ok {
		return PhaseResearching, true
	}
	return 0, false
}

// Progress parses a "researching i/n" status.
func (s Status) Progress() (done, total int, ok bool) {
	if !strings.HasPrefix(string(s), researchingPrefix) {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(string(s), "researching %d/%d", &done, &total); err != nil {
		return 0, 0, false
	}
	if done < 0 || total < 0 || done > total {
		return 0, 0, false
	}
	return done, total, true
}

// Valid reports whether s is a status the state machine can hold.
func (s Status) Valid() bool {
	_, ok := s.Phase()
	return ok
}

// Before reports whether s is strictly earlier than other. Two researching
// statuses compare by documents done.
func (s Status) Before(other Status) bool {
	p1, ok1 := s.Phase()
	p2, ok2 := other.Phase()
	if !ok1 || !ok2 {
		return false
	}
	if p1 != p2 {
		return p1 < p2
	}
	if p1 == PhaseResearching {
		d1, _, _ := s.Progress()
		d2, _, _ := other.Progress()
		return d1 < d2
	}
	return false
}
