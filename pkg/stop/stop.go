// Package stop implements a pattern for shutting down a group of processes.
package stop

import "sync"

// AlreadyStopped is a closed Result to be returned by Stoppers that have
// already been stopped.
var AlreadyStopped Result

// AlreadyStoppedFunc is a Func that returns AlreadyStopped.
var AlreadyStoppedFunc = func() Result { return AlreadyStopped }

func init() {
	closeMe := make(chan error)
	close(closeMe)
	AlreadyStopped = closeMe
}

// Result is the return value of the Stop operation.
//
// The channel yields at most one error and is closed afterwards. A close
// without a value signals a clean shutdown.
type Result <-chan error

// Channel is the writable counterpart of a Result.
type Channel chan error

// Done reports the outcome of the Stop operation and closes the Channel.
// At most the first non-nil error is reported.
func (ch Channel) Done(errs ...error) {
	for _, err := range errs {
		if err != nil {
			ch <- err
			break
		}
	}
	close(ch)
}

// Result returns the read side of the Channel.
func (ch Channel) Result() Result {
	return Result(chan error(ch))
}

// Stopper is an interface that allows a clean shutdown.
//
// Stop should return immediately and perform the actual shutdown in a
// separate goroutine, reporting to the returned Result.
type Stopper interface {
	Stop() Result
}

// Func is a function that can be used to provide a clean shutdown.
type Func func() Result

// Group is a collection of Stoppers that can be stopped all at once.
type Group struct {
	stoppables []Func
	sync.Mutex
}

// NewGroup allocates a new Group.
func NewGroup() *Group {
	return &Group{
		stoppables: make([]Func, 0),
	}
}

// Add appends a Stopper to the Group.
func (cg *Group) Add(toAdd Stopper) {
	cg.Lock()
	defer cg.Unlock()

	cg.stoppables = append(cg.stoppables, toAdd.Stop)
}

// AddFunc appends a Func to the Group.
func (cg *Group) AddFunc(toAddFunc Func) {
	cg.Lock()
	defer cg.Unlock()

	cg.stoppables = append(cg.stoppables, toAddFunc)
}

// Stop stops all members of the Group concurrently and collects their
// errors.
func (cg *Group) Stop() []error {
	cg.Lock()
	defer cg.Unlock()

	waitChannels := make([]Result, 0, len(cg.stoppables))
	for _, toStop := range cg.stoppables {
		waitFor := toStop()
		if waitFor == nil {
			panic("received a nil Result from Stop")
		}
		waitChannels = append(waitChannels, waitFor)
	}

	var errors []error
	for _, waitForMe := range waitChannels {
		if err := <-waitForMe; err != nil {
			errors = append(errors, err)
		}
	}

	return errors
}
