package uptime

import "sync"

// History keeps the most recent probe results, oldest first.
type History struct {
	mu        sync.Mutex
	retention int
	results   []Result
}

func NewHistory(retention int) *History {
	if retention <= 0 {
		retention = 100
	}
	return &History{retention: retention}
}

func (h *History) Add(res Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, res)
	if len(h.results) > h.retention {
		h.results = h.results[len(h.results)-h.retention:]
	}
}

// Last returns up to limit of the newest results, oldest first.
func (h *History) Last(limit int) []Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	logs := h.results
	if limit >= 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	return append([]Result(nil), logs...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.results)
}
