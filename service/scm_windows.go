//go:build windows

package service

import (
	"context"
	"fmt"

	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

// scm talks to the Windows Service Control Manager. A connection is opened
// per call; calls are rare (one per tick at most).
type scm struct{}

// New returns the Controller for this host.
func New() (Controller, error) {
	return &scm{}, nil
}

func (s *scm) open(name string) (*mgr.Mgr, *mgr.Service, error) {
	m, err := mgr.Connect()
	if err != nil {
		return nil, nil, fmt.Errorf("connect to service manager: %w", err)
	}
	sv, err := m.OpenService(name)
	if err != nil {
		_ = m.Disconnect()
		return nil, nil, fmt.Errorf("open service %s: %w", name, err)
	}
	return m, sv, nil
}

func (s *scm) Query(_ context.Context, name string) (Status, error) {
	m, sv, err := s.open(name)
	if err != nil {
		return Unknown, err
	}
	defer m.Disconnect()
	defer sv.Close()

	st, err := sv.Query()
	if err != nil {
		return Unknown, fmt.Errorf("query service %s: %w", name, err)
	}
	return fromState(st.State), nil
}

func (s *scm) Stop(_ context.Context, name string) error {
	m, sv, err := s.open(name)
	if err != nil {
		return err
	}
	defer m.Disconnect()
	defer sv.Close()

	if _, err := sv.Control(svc.Stop); err != nil {
		return fmt.Errorf("stop service %s: %w", name, err)
	}
	return nil
}

func (s *scm) Start(_ context.Context, name string) error {
	m, sv, err := s.open(name)
	if err != nil {
		return err
	}
	defer m.Disconnect()
	defer sv.Close()

	if err := sv.Start(); err != nil {
		return fmt.Errorf("start service %s: %w", name, err)
	}
	return nil
}

func fromState(st svc.State) Status {
	switch st {
	case svc.Stopped:
		return Stopped
	case svc.StartPending:
		return StartPending
	case svc.StopPending:
		return StopPending
	case svc.Running:
		return Running
	case svc.ContinuePending:
		return ContinuePending
	case svc.PausePending:
		return PausePending
	case svc.Paused:
		return Paused
	default:
		return Unknown
	}
}
