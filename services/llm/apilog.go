package llm

import (
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// defaultAPILogSize bounds the rolling event log. When full, the
	// oldest entry is evicted.
	defaultAPILogSize = 256

	// previewLen is the maximum number of characters of prompt or
	// response text kept in an event.
	previewLen = 256
)

// APIEvent is one redacted request/response observation. Events are
// observability data only; nothing in the call path depends on them.
type APIEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Endpoint   string    `json:"endpoint"`
	PromptPrev string    `json:"prompt_preview"`
	RespPrev   string    `json:"response_preview"`
	HTTPStatus int       `json:"http_status"`
	DurationMs int64     `json:"duration_ms"`
	Err        string    `json:"error,omitempty"`
}

// APIEventLog is a bounded, oldest-evicted log of provider API events.
// Safe for concurrent append and read; readers see a point-in-time
// snapshot and stale reads are acceptable.
type APIEventLog struct {
	events *lru.Cache[uint64, APIEvent]
	seq    atomic.Uint64
}

// NewAPIEventLog creates a log holding at most size events. A size of
// zero or less uses the default.
func NewAPIEventLog(size int) *APIEventLog {
	if size <= 0 {
		size = defaultAPILogSize
	}
	// lru.New only errors on non-positive size, which is excluded above.
	cache, _ := lru.New[uint64, APIEvent](size)
	return &APIEventLog{events: cache}
}

// Record appends an event after redacting it. Never panics and never
// returns an error: instrumentation must not abort the underlying call.
func (l *APIEventLog) Record(ev APIEvent) {
	if l == nil || l.events == nil {
		return
	}
	ev.PromptPrev = truncatePreview(redactSecrets(ev.PromptPrev))
	ev.RespPrev = truncatePreview(redactSecrets(ev.RespPrev))
	ev.Err = redactSecrets(ev.Err)
	l.events.Add(l.seq.Add(1), ev)
}

// Snapshot returns the retained events, oldest first.
func (l *APIEventLog) Snapshot() []APIEvent {
	if l == nil || l.events == nil {
		return nil
	}
	keys := l.events.Keys()
	out := make([]APIEvent, 0, len(keys))
	for _, k := range keys {
		if ev, ok := l.events.Peek(k); ok {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of retained events.
func (l *APIEventLog) Len() int {
	if l == nil || l.events == nil {
		return 0
	}
	return l.events.Len()
}

// secretMarkers are substrings that indicate a credential is embedded in
// free text. Matching lines are masked wholesale rather than trying to
// excise just the secret.
var secretMarkers = []string{"api_key", "api-key", "apikey", "authorization", "bearer ", "sk-"}

func redactSecrets(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	for _, marker := range secretMarkers {
		if strings.Contains(lower, marker) {
			return "[redacted]"
		}
	}
	return s
}

func truncatePreview(s string) string {
	if len(s) <= previewLen {
		return s
	}
	return s[:previewLen] + "..."
}
