package main

import (
	"fmt"
)

// BelowZeroMessage is shown when a decrement is refused at zero.
const BelowZeroMessage = "The counter cannot go below zero"

// automation hooks, also used as DOM ids
const (
	AppID            ID = "component-app"
	CounterDisplayID ID = "counter-display"
	ErrorDisplayID   ID = "error-display"
	DecrementID      ID = "decrement-button"
	IncrementID      ID = "increment-button"
)

// Outcome of a counter operation.
type Outcome int

const (
	Accepted Outcome = iota
	RejectedBelowZero
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case RejectedBelowZero:
		return "rejected: below zero"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// CounterView holds a non-negative counter and the last error shown for it.
// One view lives as long as the browser session that created it.
type CounterView struct {
	counter int
	err     string
	hasErr  bool
}

// NewCounterView starts the counter at start, clamped to zero.
func NewCounterView(start int) *CounterView {
	return &CounterView{counter: max(start, 0)}
}

func (v *CounterView) Counter() int {
	return v.counter
}

func (v *CounterView) Err() (string, bool) {
	return v.err, v.hasErr
}

// Increment always succeeds and clears any error.
func (v *CounterView) Increment() Outcome {
	v.counter++
	v.err, v.hasErr = "", false
	return Accepted
}

// Decrement refuses to go below zero. A successful decrement leaves a
// previously shown error in place.
func (v *CounterView) Decrement() Outcome {
	if v.counter == 0 {
		v.err, v.hasErr = BelowZeroMessage, true
		return RejectedBelowZero
	}
	v.counter--
	return Accepted
}

func (v *CounterView) CounterText() string {
	return fmt.Sprintf("The counter is %d", v.counter)
}

func (v *CounterView) ErrorText() string {
	return v.err
}

func (v *CounterView) Frame(ctx *Context) {
	if ctx.Clicked(DecrementID) {
		if o := v.Decrement(); o != Accepted {
			ctx.Log.Debug().Stringer("outcome", o).Msg("decrement refused")
		}
	}
	if ctx.Clicked(IncrementID) {
		v.Increment()
	}

	ctx.Container(AppID, "App", func() {
		ctx.Heading(1, CounterDisplayID, "", v.CounterText())
		ctx.Heading(3, ErrorDisplayID, "error", v.ErrorText())
		ctx.Button(DecrementID, "Decrement Button")
		ctx.Button(IncrementID, "Increment Button")
	})
}
