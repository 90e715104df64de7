package core

import "time"

// Clock abstracts wall-clock access so progression arithmetic stays
// deterministic under test.
type Clock interface {
	Now() time.Time
}

type clock struct{}

func (clock) Now() time.Time { return time.Now().UTC() }

func NewClock() Clock { return clock{} }
