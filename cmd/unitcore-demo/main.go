// Command unitcore-demo wires the unit-of-work engine against a persistence
// adapter, a SQLite event journal, a batch archive, and a Prometheus metrics
// endpoint, then runs a small create/update/remove workflow so the moving
// parts can be observed end to end.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"unitcore/internal/archive"
	"unitcore/internal/config"
	"unitcore/internal/core"
	archivefs "unitcore/internal/infra/archive/fs"
	archives3 "unitcore/internal/infra/archive/s3"
	eventmemory "unitcore/internal/infra/eventlog/memory"
	eventsqlite "unitcore/internal/infra/eventlog/sqlite"
	"unitcore/internal/infra/persistence/memory"
	"unitcore/internal/infra/persistence/sqlite"
	"unitcore/pkg/domain"
)

const noteKind domain.EntityType = "note"

// note is a minimal tracked entity for the demo workflow.
type note struct {
	id      string
	version int64
	Title   string
	Body    string
}

func (n *note) Kind() domain.EntityType { return noteKind }
func (n *note) ID() string              { return n.id }
func (n *note) Version() int64          { return n.version }
func (n *note) BindIdentity(id string)  { n.id = id }
func (n *note) SetVersion(v int64)      { n.version = v }

func (n *note) Fields() (map[string]any, error) {
	return map[string]any{"title": n.Title, "body": n.Body}, nil
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "unitcore-demo: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	adapter, cleanup, err := openAdapter(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	sink, sinkCleanup, err := openSink(cfg)
	if err != nil {
		return err
	}
	defer sinkCleanup()

	metrics, err := core.NewPrometheusMetricsRecorder(nil)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	manager := core.NewManager(adapter, sink,
		core.WithLogger(core.NewSlogLogger(logger)),
		core.WithMetricsRecorder(metrics),
	)

	writer, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}
	if writer != nil {
		manager.WithArchiver(writer)
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics endpoint listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := runWorkflow(ctx, manager, logger); err != nil {
		return err
	}
	logger.Info("workflow complete", "driver", cfg.Driver)
	return nil
}

func openAdapter(cfg config.Config) (domain.Adapter, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite adapter: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return memory.NewStore(), func() {}, nil
	}
}

func openSink(cfg config.Config) (domain.EventSink, func(), error) {
	if cfg.EventLogPath == "" {
		return eventmemory.NewSink(), func() {}, nil
	}
	sink, err := eventsqlite.NewSink(cfg.EventLogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open event journal: %w", err)
	}
	return sink, func() { _ = sink.Close() }, nil
}

func openArchive(ctx context.Context, cfg config.Config) (*archive.Writer, error) {
	switch cfg.ArchiveBackend {
	case "fs":
		store, err := archivefs.New(cfg.ArchiveDir)
		if err != nil {
			return nil, fmt.Errorf("open fs archive: %w", err)
		}
		return archive.NewWriter(store, "batches"), nil
	case "s3":
		store, err := archives3.OpenFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("open s3 archive: %w", err)
		}
		return archive.NewWriter(store, "batches"), nil
	default:
		return nil, nil
	}
}

// runWorkflow creates a note, updates it in a second scope, removes it in a
// third, and demonstrates a nested scope rollback in between.
func runWorkflow(ctx context.Context, manager *core.Manager, logger *slog.Logger) error {
	n := &note{Title: "first", Body: "hello"}

	if err := manager.Run(ctx, func(c *core.Coordinator) error {
		return core.NewRepository(c).Add(n)
	}); err != nil {
		return fmt.Errorf("create: %w", err)
	}
	logger.Info("created", "id", n.ID(), "version", n.Version())

	if err := manager.Run(ctx, func(c *core.Coordinator) error {
		repo := core.NewRepository(c)
		if err := repo.Attach(n); err != nil {
			return err
		}
		n.Body = "hello, world"
		if err := repo.Update(n); err != nil {
			return err
		}

		// A nested scope whose work is discarded; the outer update survives.
		child, err := c.BeginNested(ctx)
		if err != nil {
			return err
		}
		scratch := &note{Title: "scratch", Body: "discard me"}
		if err := core.NewRepository(child).Add(scratch); err != nil {
			return err
		}
		return child.Rollback(ctx)
	}); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	logger.Info("updated", "id", n.ID(), "version", n.Version())

	if err := manager.Run(ctx, func(c *core.Coordinator) error {
		repo := core.NewRepository(c)
		if err := repo.Attach(n); err != nil {
			return err
		}
		return repo.Remove(n)
	}); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	logger.Info("removed", "id", n.ID())
	return nil
}
