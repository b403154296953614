package uploader

import "sync/atomic"

// SoftStop is the cooperative cancellation flag shared between the engine
// and its transfer goroutines. Tripping it stops new transfers from starting
// and interrupts in-flight transfers at the progress cadence.
type SoftStop struct {
	tripped atomic.Bool
}

func NewSoftStop() *SoftStop {
	return &SoftStop{}
}

func (s *SoftStop) Trip() {
	s.tripped.Store(true)
}

func (s *SoftStop) Tripped() bool {
	return s != nil && s.tripped.Load()
}
