// Package service ties the snapshot engines to storage and the catalog: it
// builds, saves, loads, diffs and presents memory snapshots, pages class
// histograms and exports CPU calling context trees.
package service

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/perf-snapshot/internal/paging"
	"github.com/perf-snapshot/internal/parser"
	"github.com/perf-snapshot/internal/parser/collapsed"
	"github.com/perf-snapshot/internal/repository"
	"github.com/perf-snapshot/internal/snapfile"
	"github.com/perf-snapshot/internal/storage"
	"github.com/perf-snapshot/pkg/compression"
	"github.com/perf-snapshot/pkg/config"
	"github.com/perf-snapshot/pkg/errors"
	"github.com/perf-snapshot/pkg/model"
	"github.com/perf-snapshot/pkg/utils"
)

// Options tune the operations of a Service.
type Options struct {
	Snapshot      snapfile.Options
	Paging        paging.Options
	ExportWorkers int
	// Parser reads collapsed stacks; the collapsed parser is used when nil.
	Parser parser.Parser
	Logger utils.Logger
}

// OptionsFromConfig derives Options from the application configuration.
func OptionsFromConfig(cfg *config.Config, logger utils.Logger) (Options, error) {
	codec, err := compression.ParseType(cfg.Snapshot.Compression)
	if err != nil {
		return Options{}, errors.Wrap(errors.CodeConfigError, "invalid snapshot compression", err)
	}
	level := compression.Level(cfg.Snapshot.Level)
	if level == 0 {
		level = compression.LevelDefault
	}

	pagingOpts := paging.DefaultOptions()
	pagingOpts.MaxBufferSize = cfg.Paging.MaxBufferSize
	pagingOpts.SampleThreshold = cfg.Paging.SampleThreshold
	pagingOpts.SampleCount = cfg.Paging.SampleCount
	pagingOpts.Logger = logger

	return Options{
		Snapshot:      snapfile.Options{Compression: codec, Level: level},
		Paging:        pagingOpts,
		ExportWorkers: cfg.Export.Workers,
		Parser:        defaultParser(logger),
		Logger:        logger,
	}, nil
}

func defaultParser(logger utils.Logger) parser.Parser {
	registry := parser.NewRegistry()
	collapsed.RegisterWithRegistry(registry,
		collapsed.WithTopNOption(collapsed.DefaultTopN),
		collapsed.WithLoggerOption(logger))
	p, _ := registry.Get("collapsed")
	return p
}

// Service is the main application service.
type Service struct {
	config *config.Config
	opts   Options
	logger utils.Logger

	storage storage.Storage
	repos   *repository.Repositories
	catalog repository.SnapshotRepository

	mu     sync.Mutex
	pagers map[string]*classPager
}

// New creates a Service from configuration. Call Initialize before use.
func New(cfg *config.Config, logger utils.Logger) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = utils.NewDefaultLogger(utils.LevelInfo, nil)
	}
	opts, err := OptionsFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		config: cfg,
		opts:   opts,
		logger: logger,
		pagers: make(map[string]*classPager),
	}, nil
}

// NewWithDeps creates a ready Service over existing components. catalog may
// be nil, in which case storage alone is the source of truth.
func NewWithDeps(store storage.Storage, catalog repository.SnapshotRepository, opts Options) *Service {
	if opts.Snapshot == (snapfile.Options{}) {
		opts.Snapshot = snapfile.DefaultOptions()
	}
	if opts.Paging.MaxBufferSize == 0 {
		opts.Paging = paging.DefaultOptions()
	}
	if opts.ExportWorkers <= 0 {
		opts.ExportWorkers = 1
	}
	opts.Logger = utils.OrNull(opts.Logger)
	opts.Paging.Logger = opts.Logger
	if opts.Parser == nil {
		opts.Parser = defaultParser(opts.Logger)
	}

	return &Service{
		opts:    opts,
		logger:  opts.Logger,
		storage: store,
		catalog: catalog,
		pagers:  make(map[string]*classPager),
	}
}

// Initialize opens the storage backend and, when enabled, the catalog.
func (s *Service) Initialize(ctx context.Context) error {
	s.logger.Info("Initializing storage (%s)...", s.config.Storage.Type)
	store, err := storage.NewStorage(ctx, &s.config.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	s.storage = store

	if s.config.Catalog.Enabled {
		s.logger.Info("Opening snapshot catalog (%s)...", s.config.Catalog.Type)
		repos, err := repository.Open(&s.config.Catalog)
		if err != nil {
			s.storage.Close()
			return fmt.Errorf("failed to initialize catalog: %w", err)
		}
		s.repos = repos
		s.catalog = repos.Snapshot
	}

	s.logger.Info("Service components initialized successfully")
	return nil
}

// Close releases storage and catalog connections.
func (s *Service) Close() error {
	s.mu.Lock()
	clear(s.pagers)
	s.mu.Unlock()

	var firstErr error
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			s.logger.Error("Failed to close storage: %v", err)
			firstErr = err
		}
	}
	if s.repos != nil {
		if err := s.repos.Close(); err != nil {
			s.logger.Error("Failed to close catalog connection: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// HealthCheck verifies the catalog connection when there is one.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.repos != nil {
		if err := s.repos.HealthCheck(ctx); err != nil {
			return fmt.Errorf("catalog health check failed: %w", err)
		}
	}
	return nil
}

// HasCatalog reports whether snapshots are indexed in a catalog.
func (s *Service) HasCatalog() bool {
	return s.catalog != nil
}

func (s *Service) parse(ctx context.Context, r io.Reader) (*model.Profile, error) {
	profile, err := s.opts.Parser.Parse(ctx, r)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Parsed %s input: %d samples", s.opts.Parser.Name(), len(profile.Samples))
	return profile, nil
}

func (s *Service) requireStorage() error {
	if s.storage == nil {
		return errors.New(errors.CodeConfigError, "service is not initialized")
	}
	return nil
}
