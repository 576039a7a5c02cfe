package monitor

import (
	"context"

	"github.com/looplab/fsm"
)

// States of the liveness state machine.
const (
	StateInitializing            = "Initializing"
	StateWaitingForFirstSuccess  = "WaitingForFirstSuccess"
	StateOk                      = "Ok"
	StateRequestStop             = "RequestStop"
	StateWaitingForServiceToStop = "WaitingForServiceToStop"
	StateRequestStart            = "RequestStart"
)

// AllStates lists every state, in lifecycle order.
var AllStates = []string{
	StateInitializing,
	StateWaitingForFirstSuccess,
	StateOk,
	StateRequestStop,
	StateWaitingForServiceToStop,
	StateRequestStart,
}

const (
	eventInitialized      = "initialized"
	eventFirstSuccess     = "first_success"
	eventThresholdReached = "threshold_reached"
	eventStopIssued       = "stop_issued"
	eventStopped          = "stopped"
	eventStartIssued      = "start_issued"
)

func newFSM(onEnter func(from, to string)) *fsm.FSM {
	return fsm.NewFSM(
		StateInitializing,
		fsm.Events{
			{Name: eventInitialized, Src: []string{StateInitializing}, Dst: StateWaitingForFirstSuccess},
			{Name: eventFirstSuccess, Src: []string{StateWaitingForFirstSuccess}, Dst: StateOk},
			{Name: eventThresholdReached, Src: []string{StateOk}, Dst: StateRequestStop},
			{Name: eventStopIssued, Src: []string{StateRequestStop}, Dst: StateWaitingForServiceToStop},
			{Name: eventStopped, Src: []string{StateWaitingForServiceToStop}, Dst: StateRequestStart},
			{Name: eventStartIssued, Src: []string{StateRequestStart}, Dst: StateWaitingForFirstSuccess},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				onEnter(e.Src, e.Dst)
			},
		},
	)
}
