// Command xlform extracts templates from reference workbooks, validates and
// processes filled-in uploads against them, and exports the results.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/javajack/xlform"
	"github.com/javajack/xlform/store/duckstore"
	"github.com/spf13/cobra"
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	dbPath     string
	logLevel   string

	store *duckstore.Store
	svc   *xlform.Service
	out   io.Writer
}

func main() {
	a := &app{out: os.Stdout}
	if err := newRootCmd(a).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "xlform",
		Short: "Spreadsheet template extraction and employee data uploads",
		Long: `xlform records the structure of a reference workbook (headers, employee
field columns, formulas) as a template, then validates filled-in uploads
against it, recomputes formula columns per row and stores the results.`,
		SilenceUsage:       true,
		PersistentPreRunE:  a.open,
		PersistentPostRunE: a.close,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "DuckDB database file (default: xlform.duckdb)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newTemplateCmd(a),
		newUploadCmd(a),
		newBatchCmd(a),
		newHistoryCmd(a),
		newSummaryCmd(a),
		newEmployeeCmd(a),
	)
	return root
}

// open loads the config, applies flag overrides and opens the store.
func (a *app) open(cmd *cobra.Command, _ []string) error {
	cfg := &xlform.Config{}
	if a.configPath != "" {
		loaded, err := xlform.LoadConfig(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if a.dbPath != "" {
		cfg.Database = a.dbPath
	}
	if cfg.Database == "" {
		cfg.Database = "xlform.duckdb"
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}

	level, err := xlform.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	opts, err := cfg.Options()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	opts = append(opts, xlform.WithLogger(logger))

	store, err := duckstore.Open(cfg.Database)
	if err != nil {
		return err
	}
	svc, err := xlform.NewService(store, store, store, opts...)
	if err != nil {
		store.Close()
		return err
	}
	a.store, a.svc = store, svc
	return nil
}

func (a *app) close(*cobra.Command, []string) error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// printJSON writes v to stdout as indented JSON.
func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

// stage copies a user file to a temporary path. The service deletes the
// files it is given, so it only ever sees the copy.
func stage(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "xlform-upload-*"+filepath.Ext(path))
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("stage %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("stage %s: %w", path, err)
	}
	return dst.Name(), nil
}

// writeDownload writes a file to output, or to its own name in the
// working directory when output is empty.
func (a *app) writeDownload(f *xlform.FileDownload, output string) error {
	if output == "" {
		output = f.FileName
	}
	if err := os.WriteFile(output, f.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	fmt.Fprintf(a.out, "Wrote %s (%d bytes)\n", output, len(f.Data))
	return nil
}
