//go:build windows

package main

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/svc"
)

const hostServiceName = "LivenessMonitor"

// runHosted runs a under the Service Control Manager when the process was
// started by it.
func runHosted(a *app) (bool, error) {
	isService, err := svc.IsWindowsService()
	if err != nil || !isService {
		return false, err
	}
	return true, svc.Run(hostServiceName, &handler{app: a})
}

type handler struct {
	app *app
}

func (h *handler) Execute(_ []string, requests <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	const accepts = svc.AcceptStop | svc.AcceptShutdown
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.app.run(ctx) }()

	changes <- svc.Status{State: svc.Running, Accepts: accepts}
	for {
		select {
		case err := <-done:
			return exit(changes, err)
		case req := <-requests:
			switch req.Cmd {
			case svc.Interrogate:
				changes <- req.CurrentStatus
			case svc.Stop, svc.Shutdown:
				h.app.logger.Info("Stop requested by service manager")
				cancel()
				return exit(changes, <-done)
			default:
				h.app.logger.Warn("Unexpected service control request", zap.Uint32("cmd", uint32(req.Cmd)))
			}
		}
	}
}

func exit(changes chan<- svc.Status, err error) (bool, uint32) {
	changes <- svc.Status{State: svc.StopPending}
	if err != nil {
		return false, 1
	}
	return false, 0
}
