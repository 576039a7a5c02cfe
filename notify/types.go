// Package notify turns monitor events into throttled chat notifications.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/amartya2002/liveness-monitor/service"
	"github.com/amartya2002/liveness-monitor/uptime"
)

// Kind is the semantic type of a notification.
type Kind int

const (
	Initializing Kind = iota + 1
	TestPassed
	TestFailed
	Stopping
	WaitingForStop
	Starting
	WaitingForFirstSuccess
)

func (k Kind) String() string {
	switch k {
	case Initializing:
		return "Initializing"
	case TestPassed:
		return "TestPassed"
	case TestFailed:
		return "TestFailed"
	case Stopping:
		return "Stopping"
	case WaitingForStop:
		return "WaitingForStop"
	case Starting:
		return "Starting"
	case WaitingForFirstSuccess:
		return "WaitingForFirstSuccess"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// DefaultIntervals is the minimum number of minutes between two consecutive
// notifications of the same kind. Zero means always send.
func DefaultIntervals() map[Kind]int {
	return map[Kind]int{
		Initializing:           0,
		TestPassed:             60,
		TestFailed:             0,
		Stopping:               0,
		WaitingForStop:         1,
		Starting:               0,
		WaitingForFirstSuccess: 1,
	}
}

// Payload carries whatever the monitor knows when it emits an event. Any
// field may be empty.
type Payload struct {
	ServiceName string
	URL         string
	Probe       *uptime.Result
	Process     *service.ProcessStats
	Failures    int
	Threshold   int
	Detail      string
}

// DestinationKind selects how a destination is addressed.
type DestinationKind int

const (
	StreamByName DestinationKind = iota + 1
	StreamByID
	UserByName
	UserByID
)

// Destination is a channel (stream) or a user.
type Destination struct {
	Kind DestinationKind
	Name string
	ID   int
}

func (d Destination) String() string {
	switch d.Kind {
	case StreamByName:
		return "stream:" + d.Name
	case StreamByID:
		return "stream#" + strconv.Itoa(d.ID)
	case UserByName:
		return "user:" + d.Name
	case UserByID:
		return "user#" + strconv.Itoa(d.ID)
	default:
		return "unknown"
	}
}

// IsStream reports whether messages to d need a topic.
func (d Destination) IsStream() bool {
	return d.Kind == StreamByName || d.Kind == StreamByID
}

// Sender delivers one message to one destination and returns its id.
type Sender interface {
	SendMessage(ctx context.Context, to Destination, topic, text string) (uint64, error)
}

// Editor is implemented by senders that can replace a message's content.
type Editor interface {
	EditMessage(ctx context.Context, id uint64, text string) error
}

// Topic builds the thread name used for stream messages.
func Topic(hostID, serviceName string, started time.Time) string {
	return fmt.Sprintf("%s: %s - %s", hostID, serviceName, started.Format("2006-01-02 15:04:05"))
}
