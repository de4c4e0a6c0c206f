package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/joeshaw/envdecode"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

// OutputFormat represents different traffic output formats
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatCSV  OutputFormat = "csv"
	FormatHAR  OutputFormat = "har"
)

// Valid reports whether f is a known format.
func (f OutputFormat) Valid() bool {
	switch f {
	case FormatText, FormatJSON, FormatCSV, FormatHAR:
		return true
	}
	return false
}

// Defaults
const (
	DefaultCacheSize    = 128
	DefaultKeepListItem = 1
	DefaultViewKeep     = 3
	DefaultStatusPath   = "$.code"
	DefaultMirrorPort   = 8080
	DefaultTitle        = "API"
)

// Config holds the application configuration
type Config struct {
	// Capture settings
	CacheSize    int      // Pending request cache size
	KeepListItem int      // List items kept when simplifying bodies
	Hosts        []string // Host allow-list patterns (empty = all)
	URLs         []string // URL allow-list patterns (empty = all)
	SaveDir      string   // Directory for session files
	Watch        bool     // Print each session on stderr
	StatusPath   string   // JSONPath of the business status field

	// Traffic output
	OutputFile          string       // File to save traffic records
	OutputFormat        OutputFormat // text, json, csv, har
	MaxBodySize         int          // Maximum body size to record (bytes), 0 = unlimited
	ExcludeContentTypes []string     // Exclude these response content types

	// System logs
	LogLevel  string // debug, info, warn, error
	LogFormat string // console, text, json
	LogFile   string // File to save system logs
	Quiet     bool   // Only errors on the console

	// Wireshark integration
	EnableMirror bool // Replay sessions over loopback HTTP
	MirrorPort   int  // Mirror server port

	// Documentation
	Title   string // Document title
	Host    string // API base URL
	Workers int    // Parallel session file readers, 0 = GOMAXPROCS
	NoColor bool   // Disable colored headings
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CacheSize:    DefaultCacheSize,
		KeepListItem: DefaultKeepListItem,
		StatusPath:   DefaultStatusPath,
		OutputFormat: FormatText,
		LogLevel:     "info",
		LogFormat:    "console",
		MirrorPort:   DefaultMirrorPort,
		Title:        DefaultTitle,
	}
}

// FileConfig represents the configuration file structure with JSON tags
type FileConfig struct {
	// Capture settings
	CacheSize    *int      `json:"cache_size,omitempty" jsonschema:"minimum=1"`
	KeepListItem *int      `json:"keep_list_item,omitempty" jsonschema:"minimum=0"`
	Hosts        *[]string `json:"hosts,omitempty"`
	URLs         *[]string `json:"urls,omitempty"`
	SaveDir      *string   `json:"save_dir,omitempty"`
	Watch        *bool     `json:"watch,omitempty"`
	StatusPath   *string   `json:"status_path,omitempty"`

	// Traffic output
	OutputFile          *string   `json:"output_file,omitempty"`
	OutputFormat        *string   `json:"output_format,omitempty" jsonschema:"enum=text,enum=json,enum=csv,enum=har"`
	MaxBodySize         *int      `json:"max_body_size,omitempty" jsonschema:"minimum=0"`
	ExcludeContentTypes *[]string `json:"exclude_content_types,omitempty"`

	// System logs
	LogLevel  *string `json:"log_level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	LogFormat *string `json:"log_format,omitempty" jsonschema:"enum=console,enum=text,enum=json"`
	LogFile   *string `json:"log_file,omitempty"`
	Quiet     *bool   `json:"quiet,omitempty"`

	// Wireshark integration
	EnableMirror *bool `json:"enable_mirror,omitempty"`
	MirrorPort   *int  `json:"mirror_port,omitempty" jsonschema:"minimum=0,maximum=65535"`

	// Documentation
	Title   *string `json:"title,omitempty"`
	Host    *string `json:"host,omitempty"`
	Workers *int    `json:"workers,omitempty" jsonschema:"minimum=0"`
	NoColor *bool   `json:"no_color,omitempty"`
}

// EnvConfig lists the APISEAL_* environment variables. Values are strings so
// that an unset variable can be told apart from a zero value.
type EnvConfig struct {
	CacheSize           string `env:"APISEAL_CACHE_SIZE"`
	KeepListItem        string `env:"APISEAL_KEEP_LIST_ITEM"`
	Hosts               string `env:"APISEAL_HOSTS"`
	URLs                string `env:"APISEAL_URLS"`
	SaveDir             string `env:"APISEAL_SAVE_DIR"`
	Watch               string `env:"APISEAL_WATCH"`
	StatusPath          string `env:"APISEAL_STATUS_PATH"`
	OutputFile          string `env:"APISEAL_OUTPUT_FILE"`
	OutputFormat        string `env:"APISEAL_OUTPUT_FORMAT"`
	MaxBodySize         string `env:"APISEAL_MAX_BODY_SIZE"`
	ExcludeContentTypes string `env:"APISEAL_EXCLUDE_CONTENT_TYPES"`
	LogLevel            string `env:"APISEAL_LOG_LEVEL"`
	LogFormat           string `env:"APISEAL_LOG_FORMAT"`
	LogFile             string `env:"APISEAL_LOG_FILE"`
	Quiet               string `env:"APISEAL_QUIET"`
	EnableMirror        string `env:"APISEAL_ENABLE_MIRROR"`
	MirrorPort          string `env:"APISEAL_MIRROR_PORT"`
	Title               string `env:"APISEAL_TITLE"`
	Host                string `env:"APISEAL_HOST"`
	Workers             string `env:"APISEAL_WORKERS"`
	NoColor             string `env:"APISEAL_NO_COLOR"`
}

// GetConfigDir returns the configuration directory following the XDG base directory layout
func GetConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "apiseal")
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config", "apiseal")
	}

	return ".apiseal"
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.json")
}

// Schema reflects the JSON Schema of the configuration file.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	s := r.Reflect(&FileConfig{})
	s.Title = "apiseal configuration"
	return s
}

// LoadConfigFile loads and validates configuration from a JSON file. A
// missing file yields an empty configuration.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &FileConfig{}, nil
		}
		return nil, err
	}

	if err := validate(data); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	var config FileConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &config, nil
}

func validate(data []byte) error {
	schemaBytes, err := json.Marshal(Schema())
	if err != nil {
		return fmt.Errorf("failed to marshal config schema: %w", err)
	}

	compiler := validator.NewCompiler()
	compiler.Draft = validator.Draft2020
	if err := compiler.AddResource("config.schema.json", bytes.NewReader(schemaBytes)); err != nil {
		return fmt.Errorf("failed to add config schema: %w", err)
	}
	sch, err := compiler.Compile("config.schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile config schema: %w", err)
	}

	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return sch.Validate(doc)
}

// MergeWithFileConfig copies every value set in the file over c.
func (c *Config) MergeWithFileConfig(fc *FileConfig) {
	setInt(&c.CacheSize, fc.CacheSize)
	setInt(&c.KeepListItem, fc.KeepListItem)
	setStrings(&c.Hosts, fc.Hosts)
	setStrings(&c.URLs, fc.URLs)
	setString(&c.SaveDir, fc.SaveDir)
	setBool(&c.Watch, fc.Watch)
	setString(&c.StatusPath, fc.StatusPath)

	setString(&c.OutputFile, fc.OutputFile)
	if fc.OutputFormat != nil {
		c.OutputFormat = OutputFormat(*fc.OutputFormat)
	}
	setInt(&c.MaxBodySize, fc.MaxBodySize)
	setStrings(&c.ExcludeContentTypes, fc.ExcludeContentTypes)

	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	setString(&c.LogFile, fc.LogFile)
	setBool(&c.Quiet, fc.Quiet)

	setBool(&c.EnableMirror, fc.EnableMirror)
	setInt(&c.MirrorPort, fc.MirrorPort)

	setString(&c.Title, fc.Title)
	setString(&c.Host, fc.Host)
	setInt(&c.Workers, fc.Workers)
	setBool(&c.NoColor, fc.NoColor)
}

// MergeWithEnv copies every APISEAL_* variable that is set over c.
func (c *Config) MergeWithEnv() error {
	var env EnvConfig
	if err := envdecode.Decode(&env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return c.mergeEnv(&env)
}

func (c *Config) mergeEnv(env *EnvConfig) error {
	var errs []error
	parseInt := func(dst *int, name, v string) {
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = n
	}
	parseBool := func(dst *bool, name, v string) {
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = b
	}
	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	list := func(dst *[]string, v string) {
		if v != "" {
			*dst = splitList(v)
		}
	}

	parseInt(&c.CacheSize, "APISEAL_CACHE_SIZE", env.CacheSize)
	parseInt(&c.KeepListItem, "APISEAL_KEEP_LIST_ITEM", env.KeepListItem)
	list(&c.Hosts, env.Hosts)
	list(&c.URLs, env.URLs)
	str(&c.SaveDir, env.SaveDir)
	parseBool(&c.Watch, "APISEAL_WATCH", env.Watch)
	str(&c.StatusPath, env.StatusPath)

	str(&c.OutputFile, env.OutputFile)
	if env.OutputFormat != "" {
		c.OutputFormat = OutputFormat(env.OutputFormat)
	}
	parseInt(&c.MaxBodySize, "APISEAL_MAX_BODY_SIZE", env.MaxBodySize)
	list(&c.ExcludeContentTypes, env.ExcludeContentTypes)

	str(&c.LogLevel, env.LogLevel)
	str(&c.LogFormat, env.LogFormat)
	str(&c.LogFile, env.LogFile)
	parseBool(&c.Quiet, "APISEAL_QUIET", env.Quiet)

	parseBool(&c.EnableMirror, "APISEAL_ENABLE_MIRROR", env.EnableMirror)
	parseInt(&c.MirrorPort, "APISEAL_MIRROR_PORT", env.MirrorPort)

	str(&c.Title, env.Title)
	str(&c.Host, env.Host)
	parseInt(&c.Workers, "APISEAL_WORKERS", env.Workers)
	parseBool(&c.NoColor, "APISEAL_NO_COLOR", env.NoColor)

	return errors.Join(errs...)
}

// Validate checks values that every command relies on.
func (c *Config) Validate() error {
	if c.CacheSize < 1 {
		return fmt.Errorf("cache size must be at least 1, got %d", c.CacheSize)
	}
	if c.KeepListItem < 0 {
		return fmt.Errorf("keep list item must not be negative, got %d", c.KeepListItem)
	}
	if !c.OutputFormat.Valid() {
		return fmt.Errorf("invalid output format: %s (must be text, json, csv, or har)", c.OutputFormat)
	}
	if c.MirrorPort < 0 || c.MirrorPort > 65535 {
		return fmt.Errorf("invalid mirror port: %d", c.MirrorPort)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setStrings(dst *[]string, v *[]string) {
	if v != nil {
		*dst = *v
	}
}
