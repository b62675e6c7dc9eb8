package realtime

import (
	"errors"
	"fmt"
	"time"
)

// State is the connection state of the transport.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Input drives a state transition.
type Input int

const (
	InputInitialize Input = iota
	InputHandshakeOK
	InputHandshakeFailed
	InputDropped
	InputResumed
	InputGiveUp
	InputDisconnect
)

func (i Input) String() string {
	switch i {
	case InputInitialize:
		return "initialize"
	case InputHandshakeOK:
		return "handshake-ok"
	case InputHandshakeFailed:
		return "handshake-failed"
	case InputDropped:
		return "dropped"
	case InputResumed:
		return "resumed"
	case InputGiveUp:
		return "give-up"
	case InputDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("input(%d)", int(i))
	}
}

// ErrInvalidTransition is returned for an input the current state does not
// accept.
var ErrInvalidTransition = errors.New("invalid transition")

type edge struct {
	from State
	in   Input
}

var transitions = map[edge]State{
	{StateDisconnected, InputInitialize}:    StateConnecting,
	{StateConnecting, InputHandshakeOK}:     StateConnected,
	{StateConnecting, InputHandshakeFailed}: StateDisconnected,
	{StateConnected, InputDropped}:          StateReconnecting,
	{StateReconnecting, InputResumed}:       StateConnected,
	{StateReconnecting, InputGiveUp}:        StateDisconnected,
	{StateDisconnected, InputDisconnect}:    StateDisconnected,
	{StateConnecting, InputDisconnect}:      StateDisconnected,
	{StateConnected, InputDisconnect}:       StateDisconnected,
	{StateReconnecting, InputDisconnect}:    StateDisconnected,
}

// Transition returns the state reached from s on input in.
func Transition(s State, in Input) (State, error) {
	next, ok := transitions[edge{s, in}]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, s, in)
	}
	return next, nil
}

// ReconnectPolicy is the three-tier reconnect schedule.
type ReconnectPolicy struct {
	FastAttempts   int
	MediumAttempts int
	MaxAttempts    int
	FastDelay      time.Duration
	MediumDelay    time.Duration
	SlowDelay      time.Duration
}

// DefaultReconnectPolicy waits 1s for the first three attempts, 5s for the
// next three and 15s after that, giving up after ten.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		FastAttempts:   3,
		MediumAttempts: 3,
		MaxAttempts:    10,
		FastDelay:      time.Second,
		MediumDelay:    5 * time.Second,
		SlowDelay:      15 * time.Second,
	}
}

// Delay returns how long to wait before the given 1-based attempt, or false
// once the attempt exceeds MaxAttempts.
func (p ReconnectPolicy) Delay(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > p.MaxAttempts {
		return 0, false
	}
	switch {
	case attempt <= p.FastAttempts:
		return p.FastDelay, true
	case attempt <= p.FastAttempts+p.MediumAttempts:
		return p.MediumDelay, true
	default:
		return p.SlowDelay, true
	}
}
