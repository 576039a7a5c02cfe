// Package service controls the monitored OS service and inspects its process.
package service

import (
	"context"
	"errors"
)

var (
	// ErrUnsupportedPlatform is returned by New on hosts without a supported
	// service manager.
	ErrUnsupportedPlatform = errors.New("service control is not supported on this platform")
	// ErrProcessNotFound is returned when no running process matches a name.
	ErrProcessNotFound = errors.New("process not found")
)

// Status mirrors the service manager's view of a service.
type Status int

const (
	Unknown Status = iota
	Stopped
	StartPending
	StopPending
	Running
	ContinuePending
	PausePending
	Paused
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case StartPending:
		return "StartPending"
	case StopPending:
		return "StopPending"
	case Running:
		return "Running"
	case ContinuePending:
		return "ContinuePending"
	case PausePending:
		return "PausePending"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// Manual reports states that are only reached through operator action.
func (s Status) Manual() bool {
	return s == Paused || s == PausePending || s == ContinuePending
}

// Controller queries, stops and starts a named service. All calls may fail.
type Controller interface {
	Query(ctx context.Context, name string) (Status, error)
	Stop(ctx context.Context, name string) error
	Start(ctx context.Context, name string) error
}
