// Package diag collects the warnings and errors of one conversion so that a
// caller can report which outputs failed and why.
package diag

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/logicossoftware/go-kfx/internal/logging"
)

type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Entry is one recorded message with optional context. Offset is -1 when no
// byte offset applies.
type Entry struct {
	Severity     Severity `json:"severity"`
	Message      string   `json:"message"`
	Output       string   `json:"output,omitempty"`
	FragmentType string   `json:"fragment_type,omitempty"`
	FragmentID   string   `json:"fragment_id,omitempty"`
	ResourceID   string   `json:"resource_id,omitempty"`
	Offset       int64    `json:"offset"`
}

func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Severity.String())
	if e.Output != "" {
		b.WriteString(" [" + e.Output + "]")
	}
	b.WriteString(": " + e.Message)
	var ctx []string
	if e.FragmentType != "" || e.FragmentID != "" {
		ctx = append(ctx, "fragment "+e.FragmentType+":"+e.FragmentID)
	}
	if e.ResourceID != "" {
		ctx = append(ctx, "resource "+e.ResourceID)
	}
	if e.Offset >= 0 {
		ctx = append(ctx, fmt.Sprintf("offset %d", e.Offset))
	}
	if len(ctx) > 0 {
		b.WriteString(" (" + strings.Join(ctx, ", ") + ")")
	}
	return b.String()
}

// Context adds detail to an entry.
type Context func(*Entry)

func Fragment(typ, id string) Context {
	return func(e *Entry) { e.FragmentType, e.FragmentID = typ, id }
}

func Resource(id string) Context {
	return func(e *Entry) { e.ResourceID = id }
}

func Offset(off int64) Context {
	return func(e *Entry) { e.Offset = off }
}

type shared struct {
	mu      sync.Mutex
	entries []Entry
	logger  *slog.Logger
}

// Report is safe for concurrent use. Views returned by WithOutput share the
// same entries. All methods accept a nil receiver and do nothing.
type Report struct {
	s      *shared
	output string
}

type Option func(*shared)

// WithLogger mirrors every entry to logger as it is added.
func WithLogger(logger *slog.Logger) Option {
	return func(s *shared) { s.logger = logger }
}

func NewReport(opts ...Option) *Report {
	s := &shared{}
	for _, opt := range opts {
		opt(s)
	}
	return &Report{s: s}
}

// WithOutput returns a view that stamps entries with the output name.
func (r *Report) WithOutput(name string) *Report {
	if r == nil {
		return nil
	}
	return &Report{s: r.s, output: name}
}

func (r *Report) Add(e Entry) {
	if r == nil {
		return
	}
	if e.Output == "" {
		e.Output = r.output
	}
	r.s.mu.Lock()
	r.s.entries = append(r.s.entries, e)
	logger := r.s.logger
	r.s.mu.Unlock()
	if logger != nil {
		logEntry(logger, e)
	}
}

func (r *Report) record(sev Severity, msg string, ctx []Context) {
	e := Entry{Severity: sev, Message: msg, Offset: -1}
	for _, c := range ctx {
		c(&e)
	}
	r.Add(e)
}

func (r *Report) Info(msg string, ctx ...Context)  { r.record(Info, msg, ctx) }
func (r *Report) Warn(msg string, ctx ...Context)  { r.record(Warning, msg, ctx) }
func (r *Report) Error(msg string, ctx ...Context) { r.record(Error, msg, ctx) }

// Entries returns a copy of every entry in insertion order.
func (r *Report) Entries() []Entry {
	if r == nil {
		return nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return slices.Clone(r.s.entries)
}

func (r *Report) filter(sev Severity) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Severity == sev {
			out = append(out, e)
		}
	}
	return out
}

func (r *Report) Warnings() []Entry { return r.filter(Warning) }
func (r *Report) Errors() []Entry   { return r.filter(Error) }
func (r *Report) HasErrors() bool   { return len(r.Errors()) > 0 }

func logEntry(logger *slog.Logger, e Entry) {
	attrs := []logging.Attr{}
	if e.Output != "" {
		attrs = append(attrs, logging.String(logging.FieldOutput, e.Output))
	}
	if e.FragmentType != "" {
		attrs = append(attrs, logging.String(logging.FieldFragmentType, e.FragmentType))
	}
	if e.FragmentID != "" {
		attrs = append(attrs, logging.String(logging.FieldFragmentID, e.FragmentID))
	}
	if e.ResourceID != "" {
		attrs = append(attrs, logging.String(logging.FieldResourceID, e.ResourceID))
	}
	if e.Offset >= 0 {
		attrs = append(attrs, logging.Int64(logging.FieldOffset, e.Offset))
	}
	args := logging.Args(attrs...)
	switch e.Severity {
	case Error:
		logger.Error(e.Message, args...)
	case Warning:
		logger.Warn(e.Message, args...)
	default:
		logger.Info(e.Message, args...)
	}
}
