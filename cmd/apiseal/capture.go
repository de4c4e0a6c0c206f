package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/httpseal/apiseal/internal/config"
	"github.com/httpseal/apiseal/pkg/capture"
	"github.com/httpseal/apiseal/pkg/emit"
	"github.com/httpseal/apiseal/pkg/logger"
	"github.com/httpseal/apiseal/pkg/mirror"
	"github.com/httpseal/apiseal/pkg/session"
)

func newCaptureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Pair requests and responses read from a GoReplay stream on stdin",
		Long: `capture reads hex encoded GoReplay records from stdin, pairs every
response with its pending request and hands each session to the enabled
outputs: session files (--save-dir), the console (--watch), a traffic file
(--output) and the loopback mirror (--enable-mirror).`,
		Args: cobra.NoArgs,
		RunE: runCapture,
	}

	flags := cmd.Flags()
	addKeepFlag(cmd, config.DefaultKeepListItem)
	flags.IntVarP(&cacheSize, "cache-size", "c", config.DefaultCacheSize, "Number of pending requests kept waiting for a response")
	flags.StringVarP(&saveDir, "save-dir", "s", "", "Save sessions as files below this directory")
	flags.BoolVarP(&watch, "watch", "w", false, "Print every session on stderr")
	flags.StringSliceVar(&filterHosts, "filter-host", []string{}, "Only capture requests whose Host matches this pattern (can be repeated)")
	flags.StringSliceVar(&filterURLs, "filter-url", []string{}, "Only capture requests whose URL matches this pattern (can be repeated)")

	// Traffic output
	flags.StringVarP(&outputFile, "output", "o", "", "Write traffic records to file")
	flags.StringVar(&outputFormat, "format", string(config.FormatText), "Traffic file format: text, json, csv, har")
	flags.IntVar(&maxBodySize, "max-body-size", 0, "Maximum body size written to the traffic file (bytes, 0=unlimited)")
	flags.StringSliceVar(&excludeContentTypes, "exclude-content-type", []string{}, "Do not write responses of these content types to the traffic file")

	// Wireshark integration
	flags.BoolVar(&enableMirror, "enable-mirror", false, "Replay sessions as plain HTTP on loopback for Wireshark")
	flags.IntVar(&mirrorPort, "mirror-port", config.DefaultMirrorPort, "Mirror server port")
	return cmd
}

func runCapture(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, config.DefaultKeepListItem)
	if err != nil {
		return err
	}

	log, closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	log.Info("Starting apiseal capture v%s", version)

	filter, err := capture.NewFilter(cfg.Hosts, cfg.URLs)
	if err != nil {
		return err
	}
	cache := capture.NewCache(cfg.CacheSize, filter)

	sinks, err := captureSinks(cfg, log)
	if err != nil {
		return err
	}
	if len(sinks) == 0 {
		log.Warn("No output enabled, sessions are only logged (use --save-dir, --watch, --output or --enable-mirror)")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	capturer := capture.New(cache, log, sinks...)
	err = capturer.Run(ctx, os.Stdin)
	log.Info("Capture finished: %s", capturer.Stats())

	if errors.Is(err, context.Canceled) {
		log.Info("Interrupted, shutting down")
		return nil
	}
	return err
}

// captureSinks builds the enabled session outputs. On error every sink
// built so far is closed.
func captureSinks(cfg *config.Config, log logger.Logger) (sinks []capture.Sink, err error) {
	defer func() {
		if err == nil {
			return
		}
		for _, sink := range sinks {
			if c, ok := sink.(io.Closer); ok {
				c.Close()
			}
		}
	}()

	if cfg.SaveDir != "" {
		store, err := session.NewFileStore(cfg.SaveDir)
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, capture.SinkFunc(func(s *session.Session) error {
			path, err := store.Save(s)
			if err != nil {
				return err
			}
			log.Debug("Saved %s", path)
			return nil
		}))
		log.Info("Saving sessions below %s", store.Dir())
	}

	if cfg.Watch {
		sinks = append(sinks, emit.NewViewer(os.Stderr, cfg.KeepListItem, colored(cfg)))
	}

	if cfg.OutputFile != "" {
		traffic, err := logger.NewTrafficLogger(cfg, log, version)
		if err != nil {
			return sinks, fmt.Errorf("failed to initialize traffic logger: %w", err)
		}
		sinks = append(sinks, traffic)
		log.Info("Writing %s traffic records to %s (run %s)", cfg.OutputFormat, cfg.OutputFile, traffic.RunID())
	}

	if cfg.EnableMirror {
		mirrorServer := mirror.NewServer(cfg.MirrorPort, cfg.KeepListItem, log)
		if err := mirrorServer.Start(); err != nil {
			return sinks, fmt.Errorf("failed to start mirror server: %w", err)
		}
		sinks = append(sinks, mirrorServer)
	}
	return sinks, nil
}
