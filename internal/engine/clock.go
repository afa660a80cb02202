package engine

import "time"

// Clock abstracts wall-clock reads so grace-period expiry can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func RealClock() Clock { return realClock{} }
