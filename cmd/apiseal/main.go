package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/httpseal/apiseal/internal/config"
	"github.com/httpseal/apiseal/pkg/logger"
)

const (
	version = "0.1.0"
)

var (
	// Shared settings
	configPath   string
	keepListItem int
	statusPath   string
	noColor      bool

	// System logs
	logLevel  string
	logFormat string
	logFile   string
	quiet     bool

	// Capture
	cacheSize           int
	saveDir             string
	watch               bool
	filterHosts         []string
	filterURLs          []string
	outputFile          string
	outputFormat        string
	maxBodySize         int
	excludeContentTypes []string
	enableMirror        bool
	mirrorPort          int

	// Documentation
	title   string
	apiHost string
	dataDir string
	workers int
	output  string
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "apiseal",
		Short: "apiseal - API documentation from captured HTTP traffic",
		Long: `apiseal turns a replicated stream of HTTP traffic into session files and
renders directories of session files as API documentation, keeping one
example per distinct request and response shape.

Examples:
  # Capture traffic replayed by GoReplay into ./apis
  gor --input-raw :80 --output-stdout --input-raw-track-response | apiseal capture -s apis

  # Watch matched sessions on the console, only for one host
  gor ... | apiseal capture -w --filter-host 'api.example.com'

  # Keep a HAR file of everything captured
  gor ... | apiseal capture -s apis -o traffic.har --format har

  # Render documentation
  apiseal blueprint -d apis -o api.apib
  apiseal openapi -d apis -o openapi.yaml --host https://api.example.com
  apiseal postman -d apis -o postman.json

  # Inspect session files
  apiseal view apis/api/users/20240301_100000-list.api

  # Generate OpenAPI from hand-written definitions
  apiseal gen users.yaml -o openapi.yaml`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", config.GetDefaultConfigPath(), "Configuration file")
	flags.StringVar(&statusPath, "status-path", config.DefaultStatusPath, "JSONPath of the business status field in JSON responses (empty disables)")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")
	flags.StringVar(&logLevel, "log-level", "info", "System log level: debug, info, warn, error")
	flags.StringVar(&logFormat, "log-format", "console", "System log format: console, text, json")
	flags.StringVar(&logFile, "log-file", "", "Write system logs to file instead of stderr")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Only log errors")

	rootCmd.AddCommand(
		newCaptureCommand(),
		newViewCommand(),
		newBlueprintCommand(),
		newOpenAPICommand(),
		newPostmanCommand(),
		newSchemaCommand(),
		newGenCommand(),
		newConfigCommand(),
	)
	return rootCmd
}

// addKeepFlag registers -k with a per command default.
func addKeepFlag(cmd *cobra.Command, def int) {
	cmd.Flags().IntVarP(&keepListItem, "keep-list-item", "k", def, "Number of list items kept in bodies")
}

// addDocFlags registers the flags shared by the corpus renderers.
func addDocFlags(cmd *cobra.Command, defaultOutput string) {
	addKeepFlag(cmd, config.DefaultViewKeep)
	cmd.Flags().StringVarP(&title, "title", "t", config.DefaultTitle, "Document title")
	cmd.Flags().StringVar(&apiHost, "host", "http://{host}", "API base URL")
	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", ".", "Directory of session files")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel session file readers (0 = number of CPUs)")
	cmd.Flags().StringVarP(&output, "output", "o", defaultOutput, "Output file, - for stdout")
}

// loadConfig layers the configuration: built-in defaults, the config file,
// APISEAL_* variables, then flags given on the command line.
func loadConfig(cmd *cobra.Command, defaultKeep int) (*config.Config, error) {
	cfg := config.Default()
	cfg.KeepListItem = defaultKeep

	fileConfig, err := config.LoadConfigFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg.MergeWithFileConfig(fileConfig)

	if err := cfg.MergeWithEnv(); err != nil {
		return nil, err
	}

	applyFlags(cmd, cfg)

	if err := validateFlags(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags copies every flag set on the command line over cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("keep-list-item") {
		cfg.KeepListItem = keepListItem
	}
	if changed("status-path") {
		cfg.StatusPath = statusPath
	}
	if changed("no-color") {
		cfg.NoColor = noColor
	}
	if changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if changed("log-file") {
		cfg.LogFile = logFile
	}
	if changed("quiet") {
		cfg.Quiet = quiet
	}

	if changed("cache-size") {
		cfg.CacheSize = cacheSize
	}
	if changed("save-dir") {
		cfg.SaveDir = saveDir
	}
	if changed("watch") {
		cfg.Watch = watch
	}
	if changed("filter-host") {
		cfg.Hosts = filterHosts
	}
	if changed("filter-url") {
		cfg.URLs = filterURLs
	}
	if changed("output") && cmd.Name() == "capture" {
		cfg.OutputFile = outputFile
	}
	if changed("format") {
		cfg.OutputFormat = config.OutputFormat(outputFormat)
	}
	if changed("max-body-size") {
		cfg.MaxBodySize = maxBodySize
	}
	if changed("exclude-content-type") {
		cfg.ExcludeContentTypes = excludeContentTypes
	}
	if changed("enable-mirror") {
		cfg.EnableMirror = enableMirror
	}
	if changed("mirror-port") {
		cfg.MirrorPort = mirrorPort
	}

	if changed("title") {
		cfg.Title = title
	}
	if changed("host") {
		cfg.Host = apiHost
	}
	if changed("workers") {
		cfg.Workers = workers
	}
}

// validateFlags validates the merged configuration
func validateFlags(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	if _, err := logger.ParseFormat(cfg.LogFormat); err != nil {
		return err
	}
	if cfg.MaxBodySize < 0 {
		return fmt.Errorf("max-body-size must be >= 0")
	}
	return nil
}

// setupLogger builds the system logger. The returned function closes the
// log file, if any.
func setupLogger(cfg *config.Config) (*logger.StandardLogger, func(), error) {
	level, _ := logger.ParseLevel(cfg.LogLevel)
	format, _ := logger.ParseFormat(cfg.LogFormat)
	if cfg.Quiet {
		level = logger.LevelError
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = level
	logCfg.Format = format

	closeLog := func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logCfg.Output = f
		closeLog = func() { f.Close() }
	}
	return logger.New(logCfg), closeLog, nil
}

func colored(cfg *config.Config) bool {
	return !cfg.NoColor && !color.NoColor
}

// createOutput opens path for writing; "-" is stdout.
func createOutput(path string) (io.WriteCloser, error) {
	if path == "-" || path == "" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// isYAML picks the document encoding from the output file extension.
func isYAML(path string, def bool) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	case ".json":
		return false
	}
	return def
}
