// Package config loads osbridge configuration from flags, environment and
// an optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/inconshreveable/log15"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. OSBRIDGE_LOG_LEVEL.
const EnvPrefix = "OSBRIDGE"

// Configuration keys. Each is also a command line flag.
const (
	KeyConfigFile     = "config"
	KeyLogLevel       = "log-level"
	KeyOracleDB       = "oracle-db"
	KeyOracleInMemory = "oracle-in-memory"
	KeyTelemetryDB    = "telemetry-db"
	KeyOTLPEndpoint   = "otlp-endpoint"
	KeyOTLPProtocol   = "otlp-protocol"
	KeyOTLPInsecure   = "otlp-insecure"
	KeyServiceName    = "service-name"
	KeyStepBudget     = "step-budget"
)

// OTLP transports.
const (
	ProtocolHTTP = "http"
	ProtocolGRPC = "grpc"
)

// ErrConfigInvalid is returned by Validate.
var ErrConfigInvalid = errors.New("invalid configuration")

// Config holds osbridge configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error, crit.
	LogLevel string

	// OracleDB is the badger directory holding oracle facts.
	OracleDB string

	// OracleInMemory keeps the fact store in memory. OracleDB is ignored.
	OracleInMemory bool

	// TelemetryDB is the bbolt file syscall records are written to.
	// Empty disables recording.
	TelemetryDB string

	// OTLPEndpoint is the trace collector. For http it is a URL, e.g.
	// http://localhost:4318; for grpc a host:port, e.g. localhost:4317.
	// Empty disables trace export.
	OTLPEndpoint string

	// OTLPProtocol is http or grpc.
	OTLPProtocol string

	// OTLPInsecure disables TLS on the grpc connection.
	OTLPInsecure bool

	// ServiceName is reported with exported traces.
	ServiceName string

	// StepBudget caps the steps spent inside syscalls. 0 is unlimited.
	StepBudget uint64
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:     "info",
		OracleDB:     "./data/oracle",
		TelemetryDB:  "./data/telemetry/syscalls.db",
		OTLPProtocol: ProtocolHTTP,
		ServiceName:  "osbridge",
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := log15.LvlFromString(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log level %q", ErrConfigInvalid, c.LogLevel)
	}
	if c.OracleDB == "" && !c.OracleInMemory {
		return fmt.Errorf("%w: oracle database path is required", ErrConfigInvalid)
	}
	if c.OTLPProtocol != ProtocolHTTP && c.OTLPProtocol != ProtocolGRPC {
		return fmt.Errorf("%w: otlp protocol %q", ErrConfigInvalid, c.OTLPProtocol)
	}
	if c.OTLPEndpoint != "" && c.ServiceName == "" {
		return fmt.Errorf("%w: service name is required for trace export", ErrConfigInvalid)
	}
	return nil
}

// AddFlags registers every configuration key on fs with its default.
func AddFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.String(KeyConfigFile, "", "Config file (yaml, json or toml)")
	fs.String(KeyLogLevel, d.LogLevel, "Log level: debug, info, warn, error, crit")
	fs.String(KeyOracleDB, d.OracleDB, "Oracle fact store directory")
	fs.Bool(KeyOracleInMemory, d.OracleInMemory, "Keep the oracle fact store in memory")
	fs.String(KeyTelemetryDB, d.TelemetryDB, "Syscall record database, empty to disable")
	fs.String(KeyOTLPEndpoint, d.OTLPEndpoint, "OTLP trace collector, empty to disable")
	fs.String(KeyOTLPProtocol, d.OTLPProtocol, "OTLP transport: http or grpc")
	fs.Bool(KeyOTLPInsecure, d.OTLPInsecure, "Disable TLS for the grpc trace exporter")
	fs.String(KeyServiceName, d.ServiceName, "Service name reported with traces")
	fs.Uint64(KeyStepBudget, d.StepBudget, "Maximum steps spent in syscalls, 0 for unlimited")
}

// NewViper returns a viper instance bound to fs and the OSBRIDGE_
// environment, with defaults for every key.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	d := DefaultConfig()
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyOracleDB, d.OracleDB)
	v.SetDefault(KeyOracleInMemory, d.OracleInMemory)
	v.SetDefault(KeyTelemetryDB, d.TelemetryDB)
	v.SetDefault(KeyOTLPEndpoint, d.OTLPEndpoint)
	v.SetDefault(KeyOTLPProtocol, d.OTLPProtocol)
	v.SetDefault(KeyOTLPInsecure, d.OTLPInsecure)
	v.SetDefault(KeyServiceName, d.ServiceName)
	v.SetDefault(KeyStepBudget, d.StepBudget)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Load reads the configuration from v, including the config file named by
// the config key, and validates it.
func Load(v *viper.Viper) (Config, error) {
	if path := v.GetString(KeyConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		LogLevel:       v.GetString(KeyLogLevel),
		OracleDB:       v.GetString(KeyOracleDB),
		OracleInMemory: v.GetBool(KeyOracleInMemory),
		TelemetryDB:    v.GetString(KeyTelemetryDB),
		OTLPEndpoint:   v.GetString(KeyOTLPEndpoint),
		OTLPProtocol:   v.GetString(KeyOTLPProtocol),
		OTLPInsecure:   v.GetBool(KeyOTLPInsecure),
		ServiceName:    v.GetString(KeyServiceName),
		StepBudget:     v.GetUint64(KeyStepBudget),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetupLogging installs a terminal handler on the root logger filtered at
// level.
func SetupLogging(level string) error {
	lvl, err := log15.LvlFromString(level)
	if err != nil {
		return fmt.Errorf("%w: log level %q", ErrConfigInvalid, level)
	}
	log15.Root().SetHandler(log15.LvlFilterHandler(lvl, log15.StreamHandler(os.Stderr, log15.TerminalFormat())))
	return nil
}
