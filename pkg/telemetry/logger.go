// Package telemetry brackets syscalls with enter/exit markers for cost
// accounting.
//
// The OS program calls EnterSyscall before serving a syscall and ExitSyscall
// after, passing the step counter and the builtin pointers each time. The
// OSLogger pairs them into a Record carrying the step and builtin deltas and
// fans it out to its sinks and, when configured, to an OpenTelemetry span.
// Telemetry never changes the outcome of a run: callers log and drop the
// errors it returns.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/inconshreveable/log15"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fortiblox/stratus-os/internal/types"
)

// Telemetry errors.
var (
	ErrNoOpenSyscall    = errors.New("exit without matching enter")
	ErrSelectorMismatch = errors.New("exit selector does not match enter")
	ErrCounterRewound   = errors.New("counter went backwards")
)

// Builtins in the order of the OS BuiltinPointers struct.
var Builtins = []string{"pedersen", "range_check", "ecdsa", "bitwise", "ec_op", "poseidon"}

// EnterEvent marks the start of a syscall.
type EnterEvent struct {
	Step       uint64
	Builtins   map[string]uint64
	Deprecated bool
	Selector   types.Felt
}

// ExitEvent marks the end of a syscall. A zero Selector matches whatever
// selector the syscall was entered with.
type ExitEvent struct {
	Step     uint64
	Builtins map[string]uint64
	Selector types.Felt
}

// Record is the cost of one syscall.
type Record struct {
	Seq        uint64
	Selector   types.Felt
	Name       string
	Deprecated bool
	// Depth is the nesting level, 0 for a top-level syscall.
	Depth int
	Steps uint64
	// Builtins holds the number of cells each builtin consumed.
	Builtins map[string]uint64
}

// Sink consumes syscall records.
type Sink interface {
	Record(Record) error
}

// Option configures an OSLogger.
type Option func(*OSLogger)

// WithSink adds a record sink.
func WithSink(s Sink) Option {
	return func(l *OSLogger) { l.sinks = append(l.sinks, s) }
}

// WithTracer emits one span per syscall.
func WithTracer(t trace.Tracer) Option {
	return func(l *OSLogger) { l.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(logger log15.Logger) Option {
	return func(l *OSLogger) { l.log = logger }
}

type frame struct {
	enter EnterEvent
	ctx   context.Context
	span  trace.Span
}

// OSLogger pairs syscall enter and exit events.
type OSLogger struct {
	mu     sync.Mutex
	stack  []frame
	seq    uint64
	sinks  []Sink
	tracer trace.Tracer
	log    log15.Logger
}

// NewOSLogger creates a logger.
func NewOSLogger(opts ...Option) *OSLogger {
	l := &OSLogger{}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = log15.New("module", "telemetry")
	}
	return l
}

// Depth returns the number of syscalls entered and not yet exited.
func (l *OSLogger) Depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.stack)
}

// EnterSyscall opens a syscall.
func (l *OSLogger) EnterSyscall(ev EnterEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f := frame{enter: ev, ctx: context.Background()}
	if n := len(l.stack); n > 0 {
		f.ctx = l.stack[n-1].ctx
	}
	if l.tracer != nil {
		name, _ := types.SelectorName(ev.Selector)
		if name == "" {
			name = "syscall"
		}
		f.ctx, f.span = l.tracer.Start(f.ctx, name, trace.WithAttributes(
			attribute.String("os.selector", ev.Selector.Hex()),
			attribute.Bool("os.deprecated", ev.Deprecated),
			attribute.Int64("os.depth", int64(len(l.stack))),
		))
	}
	l.stack = append(l.stack, f)
	l.log.Debug("Enter syscall", "selector", ev.Selector.Hex(), "step", ev.Step, "depth", len(l.stack)-1)
}

// ExitSyscall closes the innermost syscall and reports its record to every
// sink. Sink failures are joined into the returned error; the record is
// valid whenever the first return is non-nil.
func (l *OSLogger) ExitSyscall(ev ExitEvent) (*Record, error) {
	l.mu.Lock()
	n := len(l.stack)
	if n == 0 {
		l.mu.Unlock()
		return nil, ErrNoOpenSyscall
	}
	f := l.stack[n-1]
	if !ev.Selector.IsZero() && !ev.Selector.Equal(f.enter.Selector) {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: entered %s, exiting %s", ErrSelectorMismatch, f.enter.Selector.Hex(), ev.Selector.Hex())
	}
	l.stack = l.stack[:n-1]

	rec, err := newRecord(f.enter, ev)
	if err != nil {
		l.mu.Unlock()
		endSpan(f.span, nil, err)
		return nil, err
	}
	rec.Depth = n - 1
	rec.Seq = l.seq
	l.seq++
	sinks := l.sinks
	l.mu.Unlock()

	endSpan(f.span, rec, nil)

	var errs []error
	for _, s := range sinks {
		if err := s.Record(*rec); err != nil {
			errs = append(errs, err)
		}
	}
	l.log.Debug("Exit syscall", "name", rec.Name, "steps", rec.Steps, "depth", rec.Depth)
	return rec, errors.Join(errs...)
}

func newRecord(enter EnterEvent, exit ExitEvent) (*Record, error) {
	if exit.Step < enter.Step {
		return nil, fmt.Errorf("%w: step %d -> %d", ErrCounterRewound, enter.Step, exit.Step)
	}
	rec := &Record{
		Selector:   enter.Selector,
		Deprecated: enter.Deprecated,
		Steps:      exit.Step - enter.Step,
		Builtins:   make(map[string]uint64, len(enter.Builtins)),
	}
	rec.Name, _ = types.SelectorName(enter.Selector)
	for name, start := range enter.Builtins {
		end, ok := exit.Builtins[name]
		if !ok {
			continue
		}
		if end < start {
			return nil, fmt.Errorf("%w: builtin %s %d -> %d", ErrCounterRewound, name, start, end)
		}
		rec.Builtins[name] = end - start
	}
	return rec, nil
}

func endSpan(span trace.Span, rec *Record, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if rec != nil {
		attrs := []attribute.KeyValue{attribute.Int64("os.steps", int64(rec.Steps))}
		for _, name := range Builtins {
			if used, ok := rec.Builtins[name]; ok {
				attrs = append(attrs, attribute.Int64("os.builtin."+name, int64(used)))
			}
		}
		span.SetAttributes(attrs...)
	}
	span.End()
}
