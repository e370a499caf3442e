package logx

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultRingSize = 100

// Entry is one line kept by Ring.
type Entry struct {
	Time    time.Time
	Level   string
	Message string
	Fields  string
}

// String renders an entry as "HH:MM:SS LEVEL message k=v".
func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Time.Format("15:04:05"))
	b.WriteString(" ")
	b.WriteString(strings.ToUpper(e.Level))
	b.WriteString(" ")
	b.WriteString(e.Message)
	if e.Fields != "" {
		b.WriteString(" ")
		b.WriteString(e.Fields)
	}
	return b.String()
}

// Ring is a bounded zerolog sink holding the most recent entries.
type Ring struct {
	mu   sync.Mutex
	buf  []Entry
	next int
	full bool
	now  func() time.Time
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = defaultRingSize
	}
	return &Ring{buf: make([]Entry, size), now: time.Now}
}

func (r *Ring) Write(p []byte) (int, error) {
	return r.WriteLevel(zerolog.NoLevel, p)
}

func (r *Ring) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	e := r.decode(level, p)
	r.mu.Lock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
	return len(p), nil
}

func (r *Ring) decode(level zerolog.Level, p []byte) Entry {
	e := Entry{Time: r.now(), Level: level.String()}
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		e.Message = strings.TrimSpace(string(p))
		return e
	}
	if s, ok := m["level"].(string); ok && s != "" {
		e.Level = s
	}
	e.Message, _ = m["message"].(string)
	if ts, ok := m["time"].(string); ok {
		if t, err := time.Parse(consoleTimeFormat, ts); err == nil {
			e.Time = t
		}
	}
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		switch k {
		case "time", "level", "message", zerolog.CallerFieldName:
			continue
		}
		parts = append(parts, k+"="+truncate(fmt.Sprint(m[k]), 200))
	}
	e.Fields = strings.Join(parts, " ")
	return e
}

// Last returns up to n most recent entries, oldest first.
func (r *Ring) Last(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.buf)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Entry, 0, n)
	start := r.next - n
	for i := 0; i < n; i++ {
		idx := (start + i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Len reports how many entries are currently held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Cap reports the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }

func (r *Ring) Clear() {
	r.mu.Lock()
	clear(r.buf)
	r.next = 0
	r.full = false
	r.mu.Unlock()
}
