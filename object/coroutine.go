package object

import "fmt"

type CoroutineState string

const (
	CoSuspended CoroutineState = "suspended"
	CoRunning   CoroutineState = "running"
	CoNormal    CoroutineState = "normal"
	CoDead      CoroutineState = "dead"
)

// ResumeMsg carries resume arguments to a suspended coroutine. Close marks
// a forced shutdown: the coroutine unwinds, running pending to-be-closed
// handlers, instead of continuing.
type ResumeMsg struct {
	Args  []Object
	Close bool
}

// Transfer carries yielded or final values back to the resumer.
type Transfer struct {
	Values []Object
	Err    *RuntimeError
	Done   bool
}

// Coroutine owns its own evaluation continuation: the body runs on a
// dedicated goroutine whose parked stack is the suspended state. Control
// transfers through the two channels, one rendezvous per resume/yield
// pair, so at most one side is ever running.
type Coroutine struct {
	Body    Object
	State   CoroutineState
	Started bool

	ResumeCh chan ResumeMsg
	YieldCh  chan Transfer
}

func NewCoroutine(body Object) *Coroutine {
	return &Coroutine{
		Body:     body,
		State:    CoSuspended,
		ResumeCh: make(chan ResumeMsg),
		YieldCh:  make(chan Transfer),
	}
}

func (c *Coroutine) Type() ObjectType { return COROUTINE_OBJ }
func (c *Coroutine) Inspect() string  { return fmt.Sprintf("thread: %p", c) }
