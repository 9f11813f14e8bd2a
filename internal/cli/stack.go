package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/vault/internal/cache"
	"github.com/mesh-intelligence/vault/internal/config"
	"github.com/mesh-intelligence/vault/internal/images"
	"github.com/mesh-intelligence/vault/internal/lineage"
	"github.com/mesh-intelligence/vault/internal/metrics"
	"github.com/mesh-intelligence/vault/internal/service"
	"github.com/mesh-intelligence/vault/internal/sqlite"
	"github.com/mesh-intelligence/vault/pkg/types"
)

// stack is the set of components a command runs against.
type stack struct {
	backend *sqlite.Backend
	images  images.Store
	metrics *metrics.Metrics
	service *service.ContributionService
	closers []func() error
}

// attach opens the contribution store under the resolved data directory.
func (a *app) attach() (*sqlite.Backend, error) {
	backend := sqlite.NewBackend(sqlite.WithLogger(a.log))
	err := backend.Attach(types.Config{Backend: types.BackendSQLite, DataDir: a.dataDir})
	if err != nil {
		return nil, systemError(fmt.Errorf("attach store: %w", err))
	}
	return backend, nil
}

// openImages builds the image store selected by images.backend.
func (a *app) openImages(ctx context.Context) (images.Store, error) {
	switch a.cfg.ImagesBackend {
	case config.ImagesS3:
		store, err := images.NewS3Store(ctx, a.cfg.S3)
		if err != nil {
			return nil, systemError(fmt.Errorf("open s3 image store: %w", err))
		}
		return store, nil
	default:
		dir, err := a.cfg.ResolveImagesDir(a.dataDir)
		if err != nil {
			return nil, systemError(err)
		}
		store, err := images.NewDiskStore(dir)
		if err != nil {
			return nil, systemError(fmt.Errorf("open image dir: %w", err))
		}
		return store, nil
	}
}

// openStack wires the store, image store, resolver and service. The lineage
// cache is added when cache.redis_url is set.
func (a *app) openStack(ctx context.Context) (*stack, error) {
	backend, err := a.attach()
	if err != nil {
		return nil, err
	}
	s := &stack{backend: backend, metrics: metrics.New()}
	s.closers = append(s.closers, backend.Detach)

	s.images, err = a.openImages(ctx)
	if err != nil {
		s.close()
		return nil, err
	}

	var resolver service.LineageResolver = lineage.NewResolver(backend,
		lineage.WithPolicy(a.cfg.Integrity),
		lineage.WithLogger(a.log),
		lineage.WithObserver(s.metrics),
	)
	if a.cfg.CacheRedisURL != "" {
		client, err := cache.Open(ctx, a.cfg.CacheRedisURL)
		if err != nil {
			s.close()
			return nil, systemError(err)
		}
		lc := cache.New(client, resolver, a.cfg.CacheTTL, a.log)
		s.closers = append(s.closers, lc.Close)
		resolver = lc
	}

	s.service = service.New(backend, s.images, resolver,
		service.WithLogger(a.log),
		service.WithRecorder(s.metrics),
	)
	return s, nil
}

// close releases stack resources in reverse order of acquisition.
func (s *stack) close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
