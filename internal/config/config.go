package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/peterbourgon/ff/v3"

	"aa_exporter/internal/maps"
)

// Configuration system:
// - config.example.toml is generated with -generate-config
// - Use brief comments here for reference only

// AppConfig represents the complete application configuration
type AppConfig struct {
	// Server configuration
	Server ServerConfig `toml:"server"`

	// Record store configuration
	Store StoreConfig `toml:"store"`

	// Filter predicate configuration
	Filter FilterConfig `toml:"filter"`

	// Ingestion configuration
	Ingest IngestConfig `toml:"ingest"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Listen address (default: "localhost:9190")
	ListenAddress string `toml:"listen_address"`

	// Metrics endpoint path (default: "/metrics")
	MetricsPath string `toml:"metrics_path"`

	// Serve the read-only JSON API under /api (default: true)
	APIEnabled bool `toml:"api_enabled"`

	// Enable pprof endpoint for debugging (default: false)
	PprofEnabled bool `toml:"pprof_enabled"`
}

// StoreConfig selects the concurrent map backends behind the record stores.
type StoreConfig struct {
	// Backend for primary and secondary indices: "xsync" or "sharded" (default: "xsync")
	IndexImplementation string `toml:"index_implementation"`

	// Backend for the handle arena: "xsync", "sharded" or "cornelk" (default: "cornelk")
	ArenaImplementation string `toml:"arena_implementation"`
}

// FilterConfig contains filter predicate settings
type FilterConfig struct {
	// Number of compiled regular expressions kept in the LRU cache (default: 256)
	RegexCacheSize uint32 `toml:"regex_cache_size"`
}

// IngestConfig lists the structured record sources read at startup.
type IngestConfig struct {
	// JSON-lines journald log files; "-" reads standard input (default: none)
	LogSources []string `toml:"log_sources"`

	// aa-status --json snapshot applied before logs are read (default: none)
	StatusFile string `toml:"status_file"`

	// Re-read StatusFile at this interval; 0 reads it once (default: 0)
	StatusInterval time.Duration `toml:"status_interval"`
}

// LoggingConfig contains the complete logging configuration
type LoggingConfig struct {
	// Default logging settings applied to all loggers
	Defaults LogDefaults `toml:"defaults"`

	// Output configurations - can have multiple outputs
	Outputs []LogOutput `toml:"outputs"`
}

// LogDefaults contains default logger settings
type LogDefaults struct {
	// Log level (default: "info")
	Level string `toml:"level"`

	// Include caller information (default: 0)
	Caller int `toml:"caller"`

	// Time field name (default: "time")
	TimeField string `toml:"time_field"`

	// Time format (default: "" = RFC3339 with milliseconds)
	TimeFormat string `toml:"time_format"`

	// Time zone (default: "Local")
	TimeLocation string `toml:"time_location"`
}

// LogOutput represents a single output configuration
type LogOutput struct {
	// Output type: "console", "file", "syslog"
	Type string `toml:"type"`

	// Enable this output (default: true)
	Enabled bool `toml:"enabled"`

	// Configuration specific to the output type
	Console *ConsoleConfig `toml:"console,omitempty"`
	File    *FileConfig    `toml:"file,omitempty"`
	Syslog  *SyslogConfig  `toml:"syslog,omitempty"`
}

// ConsoleConfig contains console/terminal output settings
type ConsoleConfig struct {
	// Use fast JSON output (default: false)
	FastIO bool `toml:"fast_io"`

	// Output format when fast_io=false: "auto", "logfmt", "glog" (default: "auto")
	Format string `toml:"format"`

	// Enable colored output (default: true)
	ColorOutput bool `toml:"color_output"`

	// Quote string values (default: true)
	QuoteString bool `toml:"quote_string"`

	// Output destination (default: "stderr")
	Writer string `toml:"writer"`

	// Use asynchronous writing (default: false)
	Async bool `toml:"async"`
}

// FileConfig contains file output settings
type FileConfig struct {
	// Log file path (required)
	Filename string `toml:"filename"`

	// Maximum file size in megabytes (default: 10)
	MaxSize int64 `toml:"max_size"`

	// Maximum number of old log files to keep (default: 7)
	MaxBackups int `toml:"max_backups"`

	// Time format for rotated filenames (default: "2006-01-02T15-04-05")
	TimeFormat string `toml:"time_format"`

	// Use local time for rotation timestamps (default: true)
	LocalTime bool `toml:"local_time"`

	// Include hostname in filename (default: true)
	HostName bool `toml:"host_name"`

	// Include process ID in filename (default: true)
	ProcessID bool `toml:"process_id"`

	// Create directory if it doesn't exist (default: true)
	EnsureFolder bool `toml:"ensure_folder"`

	// Use asynchronous writing (default: true)
	Async bool `toml:"async"`
}

// SyslogConfig contains syslog output settings
type SyslogConfig struct {
	// Network protocol (default: "udp")
	Network string `toml:"network"`

	// Syslog server address (default: "localhost:514")
	Address string `toml:"address"`

	// Hostname for syslog messages (default: system hostname)
	Hostname string `toml:"hostname"`

	// Syslog tag/program name (default: "aa_exporter")
	Tag string `toml:"tag"`

	// Message prefix marker (default: "@cee:")
	Marker string `toml:"marker"`

	// Use asynchronous writing (default: true)
	Async bool `toml:"async"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			ListenAddress: "localhost:9190",
			MetricsPath:   "/metrics",
			APIEnabled:    true,
			PprofEnabled:  false,
		},
		Store: StoreConfig{
			IndexImplementation: string(maps.XSync),
			ArenaImplementation: string(maps.Cornelk),
		},
		Filter: FilterConfig{
			RegexCacheSize: 256,
		},
		Ingest: IngestConfig{
			LogSources: []string{},
		},
		Logging: LoggingConfig{
			Defaults: LogDefaults{
				Level:        "info",
				Caller:       0,
				TimeField:    "time",
				TimeFormat:   "",
				TimeLocation: "Local",
			},
			Outputs: []LogOutput{
				{
					Type:    "console",
					Enabled: true,
					Console: &ConsoleConfig{
						FastIO:      false,
						Format:      "auto",
						ColorOutput: true,
						QuoteString: true,
						Writer:      "stderr",
						Async:       false,
					},
				},
				{
					Type:    "file",
					Enabled: false,
					File: &FileConfig{
						Filename:     "logs/aa_exporter.log",
						MaxSize:      10, // 10MB
						MaxBackups:   7,
						TimeFormat:   "2006-01-02T15-04-05",
						LocalTime:    true,
						HostName:     true,
						ProcessID:    true,
						EnsureFolder: true,
						Async:        true,
					},
				},
				{
					Type:    "syslog",
					Enabled: false,
					Syslog: &SyslogConfig{
						Network:  "udp",
						Address:  "localhost:514",
						Tag:      "aa_exporter",
						Hostname: "", // Uses system hostname by default
						Marker:   "@cee:",
						Async:    true, // Syslog is typically asynchronous
					},
				},
			},
		},
	}
}

// LoadConfig loads configuration from a TOML file, falling back to defaults
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	// If no config file specified, use defaults
	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		return config, fmt.Errorf("config file not found: %s", configPath)
	}

	// Parse TOML file
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	return config, nil
}

// SaveConfig saves the configuration to a TOML file
func SaveConfig(configPath string, config *AppConfig) error {
	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file %s: %w", configPath, err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// GenerateExampleConfig generates a TOML configuration file with default values
func GenerateExampleConfig(outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	header := `# aa_exporter Example Configuration
# This file is auto-generated and serves as an example configuration.
# Copy this file to create your own configuration and modify as needed.
#
# Format: TOML (Tom's Obvious, Minimal Language)

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(DefaultConfig()); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors
func (c *AppConfig) Validate() error {
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address cannot be empty")
	}
	if !strings.HasPrefix(c.Server.MetricsPath, "/") {
		return fmt.Errorf("server.metrics_path must start with '/', got %q", c.Server.MetricsPath)
	}

	index, err := maps.ParseImplementation(c.Store.IndexImplementation)
	if err != nil {
		return fmt.Errorf("store.index_implementation: %w", err)
	}
	if !index.Atomic() || !index.SupportsAnyKey() {
		return fmt.Errorf("store.index_implementation %q cannot serve as a primary index", index)
	}
	if _, err := maps.ParseImplementation(c.Store.ArenaImplementation); err != nil {
		return fmt.Errorf("store.arena_implementation: %w", err)
	}

	if c.Filter.RegexCacheSize == 0 {
		return fmt.Errorf("filter.regex_cache_size must be greater than zero")
	}

	// Validate that at least one output is enabled
	hasEnabledOutput := false
	for _, output := range c.Logging.Outputs {
		if output.Enabled {
			hasEnabledOutput = true
			break
		}
	}
	if !hasEnabledOutput {
		return fmt.Errorf("at least one logging output must be enabled")
	}

	return nil
}

// Flags holds the command-line flags
type Flags struct {
	ListenAddress  string
	MetricsPath    string
	ConfigPath     string
	GenerateConfig string
	LogLevel       string
	LogSources     string
	StatusFile     string
}

// ErrCleanExit signals that the requested work is done and the program should exit 0.
var ErrCleanExit = errors.New("clean exit")

// NewConfig creates a new configuration by parsing flags (and AA_EXPORTER_* environment
// variables) and loading the config file.
func NewConfig(args []string) (*AppConfig, error) {
	flags := &Flags{}
	flagSet := flag.NewFlagSet("aa_exporter", flag.ContinueOnError)

	flagSet.StringVar(&flags.ListenAddress,
		"web.listen-address",
		"",
		"Address to listen on for web interface and telemetry.")
	flagSet.StringVar(&flags.MetricsPath,
		"web.telemetry-path",
		"",
		"Path under which to expose metrics.")
	flagSet.StringVar(&flags.ConfigPath,
		"config",
		"",
		"Path to configuration file (optional).")
	flagSet.StringVar(&flags.GenerateConfig,
		"generate-config",
		"",
		"Generate example config file to specified path and exit.")
	flagSet.StringVar(&flags.LogLevel,
		"log.level",
		"",
		"Override the default log level.")
	flagSet.StringVar(&flags.LogSources,
		"ingest.logs",
		"",
		"Comma separated JSON-lines log sources ('-' for stdin).")
	flagSet.StringVar(&flags.StatusFile,
		"ingest.status",
		"",
		"aa-status --json snapshot to load at startup.")

	if err := ff.Parse(flagSet, args, ff.WithEnvVarPrefix("AA_EXPORTER")); err != nil {
		return nil, err
	}

	// Handle config generation and exit.
	if flags.GenerateConfig != "" {
		if err := GenerateExampleConfig(flags.GenerateConfig); err != nil {
			return nil, fmt.Errorf("error generating example config: %w", err)
		}
		fmt.Printf("Generated %s successfully\n", flags.GenerateConfig)
		return nil, ErrCleanExit
	}

	config, err := LoadConfig(flags.ConfigPath)
	if err != nil {
		return nil, err
	}

	// Override config with command-line flags if they were set by the user
	if flags.ListenAddress != "" {
		config.Server.ListenAddress = flags.ListenAddress
	}
	if flags.MetricsPath != "" {
		config.Server.MetricsPath = flags.MetricsPath
	}
	if flags.LogLevel != "" {
		config.Logging.Defaults.Level = flags.LogLevel
	}
	if flags.LogSources != "" {
		config.Ingest.LogSources = strings.Split(flags.LogSources, ",")
	}
	if flags.StatusFile != "" {
		config.Ingest.StatusFile = flags.StatusFile
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}
