package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kirillkom/docqa/internal/bootstrap"
	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor/dispatch"
	storagefs "github.com/kirillkom/docqa/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docqa/internal/observability/logging"
)

const serviceName = "docqa-preprocess"

type options struct {
	dir         string
	force       bool
	verbose     bool
	concurrency int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "preprocess",
		Short: "Index every supported document of a directory and save the global snapshot",
		Long: `preprocess builds the embedding index ahead of serving traffic.

Every .pdf, spreadsheet and text file directly under --dir is extracted,
chunked and embedded into a fresh index, which is then saved as the
"global" snapshot the API restores on start. An existing global snapshot
is left untouched unless --force is given.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			return run(cmd.Context(), config.Load(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&opts.dir, "dir", "d", "./data/documents", "directory with documents to index")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "rebuild even if a global snapshot exists")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 0, "documents ingested in parallel (default INGEST_CONCURRENCY)")
	return cmd
}

func run(ctx context.Context, cfg config.Config, opts options, stdout, stderr io.Writer) error {
	level := cfg.LogLevel
	if opts.verbose {
		level = "debug"
	}
	logger := logging.New(stderr, serviceName, level, logging.FormatText)
	slog.SetDefault(logger)

	if opts.concurrency > 0 {
		cfg.IngestConcurrency = opts.concurrency
	}
	if info, err := os.Stat(opts.dir); err != nil || !info.IsDir() {
		return fmt.Errorf("documents directory %q is not readable", opts.dir)
	}

	engine, err := bootstrap.NewEngine(ctx, cfg, bootstrap.EngineOptions{Service: serviceName, Logger: logger})
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer engine.Close()

	if !opts.force {
		loaded, err := engine.ScopeUC.LoadSnapshot(ctx, domain.ScopeGlobal)
		if err != nil {
			return fmt.Errorf("check existing snapshot: %w", err)
		}
		if loaded {
			fmt.Fprintf(stdout, "global snapshot already holds %d chunks; use --force to rebuild\n", engine.Index.Len())
			return nil
		}
	}

	storage, err := storagefs.New(opts.dir)
	if err != nil {
		return fmt.Errorf("open documents directory: %w", err)
	}
	docs, err := collectDocuments(ctx, storage)
	if err != nil {
		return err
	}

	report := engine.Processor(nil, storage).IngestBatch(ctx, docs)
	printReport(stdout, report)
	if report.Succeeded() == 0 {
		return errors.New("no document was indexed")
	}

	saved, err := engine.ScopeUC.SaveSnapshot(ctx, domain.ScopeGlobal)
	if err != nil {
		return fmt.Errorf("save global snapshot: %w", err)
	}
	fmt.Fprintf(stdout, "saved %d chunks to the %s snapshot store\n", saved, engine.Snapshots.Backend())
	return nil
}

type lister interface {
	List(ctx context.Context) ([]string, error)
}

// collectDocuments turns every supported file into a global document whose
// storage path is its file name.
func collectDocuments(ctx context.Context, storage lister) ([]*domain.Document, error) {
	keys, err := storage.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	now := time.Now().UTC()
	docs := make([]*domain.Document, 0, len(keys))
	for _, key := range keys {
		if !dispatch.Supported(key) {
			continue
		}
		mimeType := mime.TypeByExtension(filepath.Ext(key))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		docs = append(docs, &domain.Document{
			ID:          uuid.NewString(),
			Filename:    key,
			MimeType:    mimeType,
			StoragePath: key,
			Status:      domain.StatusUploaded,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if len(docs) == 0 {
		return nil, errors.New("no supported documents found")
	}
	return docs, nil
}

func printReport(w io.Writer, report domain.BatchReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOCUMENT\tSTATUS\tPAGES\tWORDS\tCHUNKS\tEMBED\tINDEX\tERROR")
	for _, r := range report.Reports {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\n",
			r.Filename, r.Status, r.Stats.PageCount, r.Stats.WordCount, r.Stats.ChunkCount,
			r.EmbedDuration.Round(time.Millisecond), r.IndexDuration.Round(time.Millisecond), r.Error)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d/%d documents indexed\n", report.Succeeded(), len(report.Reports))
}
