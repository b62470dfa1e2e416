// Package bridge wires the syscall bridge for one OS run: the oracle fact
// store and execution helper, the syscall handler, telemetry sinks and the
// hint registry.
//
// A Session is created from a config.Config, handed to the interpreter as the
// hint executor and closed when the run ends:
//
//	s, err := bridge.Open(ctx, cfg)
//	...
//	defer s.Close(ctx)
//	err = s.Execute(code, &hints.Context{VM: v, Scopes: scopes, Ids: ids})
package bridge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"

	"github.com/inconshreveable/log15"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fortiblox/stratus-os/internal/config"
	"github.com/fortiblox/stratus-os/pkg/hints"
	"github.com/fortiblox/stratus-os/pkg/oracle"
	"github.com/fortiblox/stratus-os/pkg/syscall"
	"github.com/fortiblox/stratus-os/pkg/telemetry"
	"github.com/fortiblox/stratus-os/pkg/vm"
)

// Session errors.
var (
	ErrSessionClosed = errors.New("session is closed")
	ErrInitFailed    = errors.New("session initialization failed")
)

const tracerName = "github.com/fortiblox/stratus-os/pkg/bridge"

// Option configures Open.
type Option func(*options)

type options struct {
	logger         log15.Logger
	facts          *oracle.Facts
	preload        bool
	runLabel       string
	tracerProvider trace.TracerProvider
}

// WithLogger sets the session logger.
func WithLogger(l log15.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFacts imports facts into the fact store before the run.
func WithFacts(f oracle.Facts) Option {
	return func(o *options) { o.facts = &f }
}

// WithPreload loads every storage cell into memory up front instead of
// reading the store on demand.
func WithPreload() Option {
	return func(o *options) { o.preload = true }
}

// WithRunLabel tags syscall records written by this session.
func WithRunLabel(label string) Option {
	return func(o *options) { o.runLabel = label }
}

// WithTracerProvider uses tp for syscall spans instead of the OTLP exporter
// named in the config.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// Session is one OS run's bridge.
type Session struct {
	config config.Config
	log    log15.Logger

	store    *oracle.BadgerStore
	helper   *oracle.ExecutionHelper
	meter    *telemetry.ResourceMeter
	recorder *telemetry.BoltRecorder
	tp       *sdktrace.TracerProvider
	conn     *grpc.ClientConn
	osLogger *telemetry.OSLogger
	registry *hints.Registry
	run      *hints.Run

	mu     sync.Mutex
	closed bool
}

// Open builds a session from cfg.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{runLabel: "default"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log15.New("module", "bridge")
	}

	s := &Session{config: cfg, log: o.logger}
	if err := s.initialize(ctx, o); err != nil {
		s.closeAll(ctx)
		return nil, fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	s.log.Info("Session opened", "run", o.runLabel, "contracts", len(s.helper.Contracts()),
		"recorder", cfg.TelemetryDB != "", "otlp", cfg.OTLPEndpoint != "")
	return s, nil
}

func (s *Session) initialize(ctx context.Context, o options) error {
	storeCfg := oracle.DefaultBadgerConfig(s.config.OracleDB)
	storeCfg.InMemory = s.config.OracleInMemory
	storeCfg.Logger = s.log.New("module", "badger")
	store, err := oracle.NewBadgerStore(storeCfg)
	if err != nil {
		return fmt.Errorf("open oracle store: %w", err)
	}
	s.store = store

	if o.facts != nil {
		if err := store.Import(*o.facts); err != nil {
			return fmt.Errorf("import facts: %w", err)
		}
	}
	facts, err := store.LoadFacts(o.preload)
	if err != nil {
		return fmt.Errorf("load facts: %w", err)
	}
	helper, err := oracle.NewExecutionHelper(facts, store, s.log.New("module", "oracle"))
	if err != nil {
		return fmt.Errorf("create execution helper: %w", err)
	}
	s.helper = helper

	s.registry = hints.NewRegistry()
	s.meter = telemetry.NewResourceMeter(s.config.StepBudget)
	loggerOpts := []telemetry.Option{
		telemetry.WithSink(s.meter),
		telemetry.WithLogger(s.log.New("module", "telemetry")),
	}

	if s.config.TelemetryDB != "" {
		rec, err := telemetry.OpenBoltRecorder(telemetry.RecorderConfig{
			Path:    s.config.TelemetryDB,
			Run:     o.runLabel,
			HintSet: s.registry.Fingerprint(),
		})
		if err != nil {
			return fmt.Errorf("open telemetry store: %w", err)
		}
		s.recorder = rec
		loggerOpts = append(loggerOpts, telemetry.WithSink(rec))
	}

	switch {
	case o.tracerProvider != nil:
		loggerOpts = append(loggerOpts, telemetry.WithTracer(o.tracerProvider.Tracer(tracerName)))
	case s.config.OTLPEndpoint != "":
		exp, err := s.newExporter(ctx)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		s.tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", s.config.ServiceName))),
		)
		loggerOpts = append(loggerOpts, telemetry.WithTracer(s.tp.Tracer(tracerName)))
	}
	s.osLogger = telemetry.NewOSLogger(loggerOpts...)

	s.run = &hints.Run{
		Syscalls:  syscall.NewHandler(helper, s.log.New("module", "syscall")),
		Oracle:    helper,
		Dicts:     vm.NewDictManager(),
		Telemetry: s.osLogger,
		Log:       s.log.New("module", "hints"),
	}
	return nil
}

// newExporter creates the OTLP span exporter for the configured transport.
// The grpc connection is owned by the session and closed after the tracer
// provider shuts down.
func (s *Session) newExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	if s.config.OTLPProtocol != config.ProtocolGRPC {
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(s.config.OTLPEndpoint))
	}

	creds := insecure.NewCredentials()
	if !s.config.OTLPInsecure {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	conn, err := grpc.NewClient(s.config.OTLPEndpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.config.OTLPEndpoint, err)
	}
	s.conn = conn
	return otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
}

// Registry returns the hint registry.
func (s *Session) Registry() *hints.Registry { return s.registry }

// Run returns the collaborators hints of this session execute against.
func (s *Session) Run() *hints.Run { return s.run }

// Helper returns the execution helper.
func (s *Session) Helper() *oracle.ExecutionHelper { return s.helper }

// Store returns the oracle fact store.
func (s *Session) Store() *oracle.BadgerStore { return s.store }

// Meter returns the syscall resource meter.
func (s *Session) Meter() *telemetry.ResourceMeter { return s.meter }

// Recorder returns the syscall record store, or nil when recording is off.
func (s *Session) Recorder() *telemetry.BoltRecorder { return s.recorder }

// SeedStateChanges builds the contract state changes dict in v from the
// oracle's state entries.
func (s *Session) SeedStateChanges(v *vm.VirtualMachine) (vm.Relocatable, error) {
	return hints.SeedStateChanges(v, s.run.Dicts, s.helper)
}

// Execute compiles and runs one hint. hc.Run defaults to the session's run.
func (s *Session) Execute(code string, hc *hints.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	if hc.Run == nil {
		hc.Run = s.run
	}
	return s.registry.Run(code, hc)
}

// Summary describes what a run did.
type Summary struct {
	Syscalls      map[string]uint64
	Events        int
	Messages      int
	Replacements  int
	StorageReads  int
	StorageWrites int
	Usage         telemetry.Usage
}

// Summary reports the run so far.
func (s *Session) Summary() Summary {
	h := s.run.Syscalls
	sum := Summary{
		Syscalls:      make(map[string]uint64),
		Events:        len(h.Events()),
		Messages:      len(h.Messages()),
		Replacements:  len(h.Replacements()),
		StorageReads:  len(s.helper.StorageReads()),
		StorageWrites: len(s.helper.StorageWrites()),
		Usage:         s.meter.Total(),
	}
	for _, k := range syscall.Kinds() {
		if n := h.Count(k); n > 0 {
			sum.Syscalls[k.String()] = n
		}
	}
	return sum
}

// Close flushes traces and closes the stores.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.closed = true
	s.mu.Unlock()

	if s.osLogger != nil && s.osLogger.Depth() > 0 {
		s.log.Warn("Session closed with open syscalls", "depth", s.osLogger.Depth())
	}
	return s.closeAll(ctx)
}

func (s *Session) closeAll(ctx context.Context) error {
	var errs []error
	if s.tp != nil {
		if err := s.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close trace connection: %w", err))
		}
	}
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close telemetry store: %w", err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close oracle store: %w", err))
		}
	}
	return errors.Join(errs...)
}
