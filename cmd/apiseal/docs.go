package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/spf13/cobra"

	"github.com/httpseal/apiseal/internal/config"
	"github.com/httpseal/apiseal/pkg/emit"
	"github.com/httpseal/apiseal/pkg/httpmsg"
	"github.com/httpseal/apiseal/pkg/logger"
	"github.com/httpseal/apiseal/pkg/schema"
	"github.com/httpseal/apiseal/pkg/session"
)

func newViewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view <file.api>...",
		Short: "Print session files with simplified bodies",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runView,
	}
	addKeepFlag(cmd, config.DefaultViewKeep)
	return cmd
}

func runView(cmd *cobra.Command, args []string) error {
	cfg, log, closeLog, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	viewer := emit.NewViewer(os.Stdout, cfg.KeepListItem, colored(cfg))
	failed := 0
	for _, path := range args {
		s, err := session.ReadFilePath(path, cfg.KeepListItem)
		if err != nil {
			log.Error("%v", err)
			failed++
			continue
		}
		if err := viewer.Write(s); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to read %d of %d files", failed, len(args))
	}
	return nil
}

func newBlueprintCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blueprint",
		Short: "Render a directory of session files as API Blueprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return renderCorpus(cmd, func(w io.Writer, c *session.Corpus, opts emit.Options) error {
				return emit.Blueprint(w, c, opts)
			})
		},
	}
	addDocFlags(cmd, "api.apib")
	return cmd
}

func newOpenAPICommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Render a directory of session files as an OpenAPI 3 document",
		Long: `openapi writes one path per endpoint and one operation per method. The
output is YAML when the file name ends in .yaml or .yml, JSON otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := outputPath(cmd)
			return renderCorpus(cmd, func(w io.Writer, c *session.Corpus, opts emit.Options) error {
				doc, err := emit.OpenAPI(cmd.Context(), c, opts)
				if err != nil {
					return err
				}
				return writeDocument(w, doc, isYAML(path, false))
			})
		},
	}
	addDocFlags(cmd, "openapi.json")
	return cmd
}

func newPostmanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "postman",
		Short: "Render a directory of session files as a Postman collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return renderCorpus(cmd, func(w io.Writer, c *session.Corpus, opts emit.Options) error {
				col, err := emit.Postman(c, opts)
				if err != nil {
					return err
				}
				return emit.WriteJSON(w, col)
			})
		},
	}
	addDocFlags(cmd, "postman.json")
	return cmd
}

type renderFunc func(w io.Writer, c *session.Corpus, opts emit.Options) error

// renderCorpus loads the corpus below --data-dir and renders it to --output.
func renderCorpus(cmd *cobra.Command, render renderFunc) error {
	cfg, log, closeLog, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	policy, err := session.NewPolicy(cfg.KeepListItem, cfg.StatusPath)
	if err != nil {
		return err
	}
	corpus, err := session.LoadCorpus(cmd.Context(), dataDir, policy, cfg.Workers)
	if err != nil {
		return err
	}
	for _, err := range corpus.Errors {
		log.Warn("Skipping %v", err)
	}
	log.Info("Loaded %d of %d session files from %s, %d alike sessions discarded",
		corpus.Sessions(), corpus.Files, dataDir, corpus.Discarded)

	path := outputPath(cmd)
	out, err := createOutput(path)
	if err != nil {
		return err
	}
	opts := emit.Options{Title: cfg.Title, Host: cfg.Host, Keep: cfg.KeepListItem}
	if err := render(out, corpus, opts); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if path != "-" {
		log.Info("Wrote %s", path)
	}
	return nil
}

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the shape schema of the JSON document on stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			v, ok := httpmsg.ParseJSON(string(data))
			if !ok {
				return errors.New("stdin is not a JSON document")
			}
			return emit.WriteJSON(cmd.OutOrStdout(), schema.Build(v))
		},
	}
}

func newGenCommand() *cobra.Command {
	var apiVersion string
	cmd := &cobra.Command{
		Use:   "gen <definitions.yaml>...",
		Short: "Generate an OpenAPI 3 document from YAML operation definitions",
		Long: `gen reads YAML streams of operation documents. A document without a
request only declares definitions for the documents that follow:

  definitions:
    "*id": User id(1:int)
  ---
  request:
    summary: Get user
    method: get
    url: /users/{id}?verbose=true
  responses:
    200:
      description: OK
      body: '{"id": 1, "name": "bob"}'

Bad documents are reported and skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, closeLog, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeLog()

			gen := emit.NewGenerator(cfg.Title, apiVersion, cfg.Host)
			var errs []error
			for _, path := range args {
				if err := processDefinitions(gen, path); err != nil {
					log.Error("%v", err)
					errs = append(errs, err)
				}
			}

			if err := gen.Document().Validate(cmd.Context()); err != nil {
				return fmt.Errorf("generated document is invalid: %w", err)
			}

			path := outputPath(cmd)
			out, err := createOutput(path)
			if err != nil {
				return err
			}
			defer out.Close()
			if err := writeDocument(out, gen.Document(), isYAML(path, true)); err != nil {
				return err
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", config.DefaultTitle, "Document title")
	cmd.Flags().StringVar(&apiHost, "host", "", "API base URL")
	cmd.Flags().StringVar(&apiVersion, "api-version", "0.1", "API version written to the document")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file, - for stdout")
	return cmd
}

func processDefinitions(gen *emit.Generator, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gen.Process(f, path)
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration file helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := json.MarshalIndent(config.Schema(), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the default configuration file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetDefaultConfigPath())
		},
	})
	return cmd
}

// setup loads the configuration and the system logger for a documentation
// command.
func setup(cmd *cobra.Command) (*config.Config, logger.Logger, func(), error) {
	cfg, err := loadConfig(cmd, config.DefaultViewKeep)
	if err != nil {
		return nil, nil, nil, err
	}
	log, closeLog, err := setupLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, closeLog, nil
}

// outputPath returns --output, or this command's default when it was not
// given. The flag variable is shared between commands.
func outputPath(cmd *cobra.Command) string {
	f := cmd.Flags().Lookup("output")
	if f == nil {
		return "-"
	}
	if f.Changed {
		return output
	}
	return f.DefValue
}

func writeDocument(w io.Writer, doc *openapi3.T, asYAML bool) error {
	if asYAML {
		return emit.WriteYAML(w, doc)
	}
	return emit.WriteJSON(w, doc)
}
