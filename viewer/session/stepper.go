package session

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stepper sends a step command at a fixed interval until cancelled
type Stepper struct {
	interval time.Duration
	send     func(Command) error
	logger   *zap.Logger

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	sealed bool
}

// NewStepper creates an idle stepper calling send once per interval.
func NewStepper(interval time.Duration, send func(Command) error, logger *zap.Logger) *Stepper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stepper{interval: interval, send: send, logger: logger}
}

// Start begins stepping. It reports false, and changes nothing, when the
// stepper is already running or has been sealed.
func (st *Stepper) Start() bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.stop != nil || st.sealed {
		return false
	}
	st.stop = make(chan struct{})
	st.done = make(chan struct{})
	go st.run(st.stop, st.done)
	return true
}

// Cancel stops the timer and waits for its goroutine to exit, so no step is
// sent after Cancel returns. It reports whether a timer was running.
func (st *Stepper) Cancel() bool {
	st.mu.Lock()
	stop, done := st.stop, st.done
	st.stop, st.done = nil, nil
	st.mu.Unlock()

	if stop == nil {
		return false
	}
	close(stop)
	<-done
	return true
}

// Seal cancels the timer like Cancel and makes every later Start a no-op.
func (st *Stepper) Seal() bool {
	st.mu.Lock()
	st.sealed = true
	st.mu.Unlock()
	return st.Cancel()
}

// Sealed reports whether Seal has been called.
func (st *Stepper) Sealed() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sealed
}

// Active reports whether the timer is running.
func (st *Stepper) Active() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.stop != nil
}

// Interval returns the step period.
func (st *Stepper) Interval() time.Duration {
	return st.interval
}

func (st *Stepper) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(st.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// a tick and a cancel can be ready together, cancel wins
			select {
			case <-stop:
				return
			default:
			}
			if err := st.send(CommandStep); err != nil {
				st.logger.Debug("step send failed", zap.Error(err))
			}
		}
	}
}
