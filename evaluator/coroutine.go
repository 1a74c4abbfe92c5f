package evaluator

import (
	"log/slog"

	"lua/object"
)

// Coroutines run the evaluator on their own goroutine: the parked goroutine
// stack is the suspended continuation, so a yield deep inside nested
// evaluation suspends without disturbing any other in-flight state. Control
// transfers by channel rendezvous; at most one side runs at any instant.

// NewCoroutine wraps a callable in a suspended coroutine.
func (i *Interp) NewCoroutine(fn object.Object) (*object.Coroutine, *object.RuntimeError) {
	if !isCallable(fn) {
		return nil, i.NewError(object.TypeError,
			"cannot create a coroutine from a %s value", object.TypeName(fn))
	}
	return object.NewCoroutine(fn), nil
}

// CurrentCoroutine returns the running coroutine, nil on the main line.
func (i *Interp) CurrentCoroutine() *object.Coroutine { return i.current }

// Status reports a coroutine's state as seen by the caller.
func (i *Interp) Status(co *object.Coroutine) object.CoroutineState {
	return co.State
}

// Resume transfers control into co and blocks until it yields, returns or
// fails. The result is always a tuple: (true, values...) on success,
// (false, error value) on failure. Resuming a dead or running coroutine
// produces a failure tuple, never a host fault.
func (i *Interp) Resume(co *object.Coroutine, args []object.Object) []object.Object {
	switch co.State {
	case object.CoDead:
		return resumeFailure("cannot resume dead coroutine")
	case object.CoRunning, object.CoNormal:
		return resumeFailure("cannot resume non-suspended coroutine")
	}

	prev := i.current
	if prev != nil {
		prev.State = object.CoNormal
	}
	co.State = object.CoRunning
	i.current = co

	// each coroutine carries its own call stack; the caller's depth
	// must not count frames parked on a suspended goroutine
	depth := i.depth

	if !co.Started {
		co.Started = true
		slog.Debug("coroutine start")
		go func() {
			i.depth = 0
			vals, err := i.callValue(co.Body, args)
			co.YieldCh <- object.Transfer{Values: vals, Err: err, Done: true}
		}()
	} else {
		co.ResumeCh <- object.ResumeMsg{Args: args}
	}

	t := <-co.YieldCh

	i.depth = depth
	i.current = prev
	if prev != nil {
		prev.State = object.CoRunning
	}

	if t.Err != nil {
		co.State = object.CoDead
		payload := object.Object(NIL)
		if t.Err.Payload != nil {
			payload = t.Err.Payload
		}
		return []object.Object{FALSE, payload}
	}
	if t.Done {
		co.State = object.CoDead
	} else {
		co.State = object.CoSuspended
	}
	return append([]object.Object{TRUE}, t.Values...)
}

// Yield suspends the calling coroutine, handing args to its resumer, and
// returns the values of the next resume. Yielding from the main line is an
// error.
func (i *Interp) Yield(args []object.Object) ([]object.Object, *object.RuntimeError) {
	co := i.current
	if co == nil {
		return nil, i.NewError(object.YieldOutsideCoroutine,
			"attempt to yield from outside a coroutine")
	}
	depth := i.depth
	co.YieldCh <- object.Transfer{Values: args}
	msg := <-co.ResumeCh
	i.depth = depth
	if msg.Close {
		// forced shutdown: unwind through the signal path so scope
		// cleanup handlers run on the way out
		return nil, i.NewError(object.CoroutineError, "coroutine closed")
	}
	return msg.Args, nil
}

// CloseCoroutine forces co to dead. A suspended coroutine unwinds first,
// running any pending to-be-closed handlers; an error raised by such a
// handler is returned.
func (i *Interp) CloseCoroutine(co *object.Coroutine) *object.RuntimeError {
	switch co.State {
	case object.CoDead:
		return nil
	case object.CoSuspended:
		if !co.Started {
			co.State = object.CoDead
			return nil
		}
		depth := i.depth
		co.ResumeCh <- object.ResumeMsg{Close: true}
		t := <-co.YieldCh
		for !t.Done && t.Err == nil {
			// a cleanup handler yielded; keep forcing the unwind
			co.ResumeCh <- object.ResumeMsg{Close: true}
			t = <-co.YieldCh
		}
		i.depth = depth
		co.State = object.CoDead
		if t.Err != nil && t.Err.Kind != object.CoroutineError {
			return t.Err
		}
		return nil
	}
	return i.NewError(object.TypeError, "cannot close a %s coroutine", co.State)
}

func resumeFailure(message string) []object.Object {
	return []object.Object{FALSE, &object.String{Value: message}}
}
