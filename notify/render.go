package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amartya2002/liveness-monitor/service"
	"github.com/amartya2002/liveness-monitor/uptime"
)

const placeholder = "-"

// row is one line of the probe results table.
type row struct {
	at        time.Time
	probe     *uptime.Result
	process   *service.ProcessStats
	failures  int
	threshold int
}

func rowFromPayload(p Payload, at time.Time) row {
	r := row{at: at, failures: p.Failures, threshold: p.Threshold}
	if p.Probe != nil {
		probe := *p.Probe
		r.probe = &probe
		if !probe.Timestamp.IsZero() {
			r.at = probe.Timestamp
		}
	}
	if p.Process != nil {
		proc := *p.Process
		r.process = &proc
	}
	return r
}

// render never panics: a broken payload degrades to a short fallback text.
func (g *Gate) render(kind Kind, p Payload, now time.Time) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = fmt.Sprintf("%s: %s", kind, orPlaceholder(p.ServiceName))
		}
	}()

	svc := orPlaceholder(p.ServiceName)
	switch kind {
	case Initializing:
		text = "Monitoring service initializing..."
		if p.Detail != "" {
			text += "\n" + p.Detail
		}
		return text
	case TestPassed:
		return g.table("HTTP Test Results:", &p, now)
	case TestFailed:
		return g.table(fmt.Sprintf(":warning: HTTP test failed for service %s (%s/%s)",
			svc, count(p.Failures), count(p.Threshold)), &p, now)
	case Stopping:
		if len(g.backlog) == 0 {
			return fmt.Sprintf(":stop_sign: Stopping service (%s) due to failures!", svc)
		}
		return g.table(":stop_sign: Stopping service "+svc, nil, now)
	case WaitingForStop:
		return fmt.Sprintf("Waiting on service (%s) to stop.", svc)
	case Starting:
		return fmt.Sprintf("Starting service: %s (may take a few minutes)...", svc)
	case WaitingForFirstSuccess:
		return fmt.Sprintf("Waiting on first HTTP success from service: %s (may take a few minutes)...", svc)
	default:
		return fmt.Sprintf("%s: %s", kind, svc)
	}
}

// table renders the current row (if any) followed by the backlog of
// suppressed rows, newest first, and clears the backlog.
func (g *Gate) table(header string, current *Payload, now time.Time) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")

	collapsed := len(g.backlog) > 0
	if collapsed {
		b.WriteString("```spoiler\n")
	}
	b.WriteString("> | Time | HTTP | ms | Fail | Mem (MB) | Threads | #Conn |\n")
	b.WriteString("> |---|---|---|---|---|---|---|\n")
	if current != nil {
		writeRow(&b, rowFromPayload(*current, now))
	}
	for i := len(g.backlog) - 1; i >= 0; i-- {
		writeRow(&b, g.backlog[i])
	}
	if collapsed {
		b.WriteString("```\n")
	}
	g.backlog = nil
	return b.String()
}

func writeRow(b *strings.Builder, r row) {
	cells := []string{
		r.at.Format("15:04:05"),
		placeholder,
		placeholder,
		fmt.Sprintf("%s/%s", count(r.failures), count(r.threshold)),
		placeholder,
		placeholder,
		placeholder,
	}
	if r.probe != nil {
		cells[1] = httpCell(*r.probe)
		cells[2] = strconv.FormatInt(r.probe.ElapsedMs(), 10)
	}
	if r.process != nil {
		cells[4] = strconv.FormatFloat(float64(r.process.RSSBytes)/(1024*1024), 'f', 3, 64)
		cells[5] = strconv.Itoa(int(r.process.Threads))
		cells[6] = strconv.Itoa(r.process.Connections)
	}
	b.WriteString("> | ")
	b.WriteString(strings.Join(cells, " | "))
	b.WriteString(" |\n")
}

func httpCell(res uptime.Result) string {
	if res.HasStatus() {
		return strconv.Itoa(res.StatusCode)
	}
	if res.Error != "" {
		return strings.ReplaceAll(res.Error, "|", "/")
	}
	return placeholder
}

func count(n int) string {
	if n <= 0 {
		return "0"
	}
	return strconv.Itoa(n)
}

func orPlaceholder(s string) string {
	if s == "" {
		return placeholder
	}
	return s
}
