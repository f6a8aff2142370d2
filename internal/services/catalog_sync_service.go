package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stockyard/api/internal/domain"
	"github.com/stockyard/api/internal/platform/config"
	"github.com/stockyard/api/internal/repositories"
	"github.com/stockyard/api/internal/unleashed"
)

var (
	// ErrSyncInvalidInput indicates the caller supplied invalid sync parameters.
	ErrSyncInvalidInput = errors.New("catalog sync: invalid input")
	// ErrSyncStatusNotFound indicates no sync has ever run for the owner and kind.
	ErrSyncStatusNotFound = errors.New("catalog sync: status not found")
)

// CatalogSyncServiceDeps bundles collaborators for the sync orchestrator.
type CatalogSyncServiceDeps struct {
	Fetcher    PageFetcher
	Products   repositories.ProductRepository
	Warehouses repositories.WarehouseRepository
	Status     repositories.SyncStatusRepository
	Publisher  SyncEventPublisher
	Normalizer *RecordNormalizer
	Config     config.SyncConfig
	Logger     *zap.Logger
	Clock      func() time.Time
}

type catalogSyncService struct {
	fetcher    PageFetcher
	products   repositories.ProductRepository
	warehouses repositories.WarehouseRepository
	status     repositories.SyncStatusRepository
	publisher  SyncEventPublisher
	normalizer *RecordNormalizer
	cfg        config.SyncConfig
	logger     *zap.Logger
	clock      func() time.Time
}

// NewCatalogSyncService constructs the sync orchestrator.
func NewCatalogSyncService(deps CatalogSyncServiceDeps) (CatalogSyncService, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("catalog sync service: fetcher is required")
	}
	if deps.Products == nil {
		return nil, errors.New("catalog sync service: product repository is required")
	}
	if deps.Warehouses == nil {
		return nil, errors.New("catalog sync service: warehouse repository is required")
	}
	if deps.Status == nil {
		return nil, errors.New("catalog sync service: sync status repository is required")
	}

	normalizer := deps.Normalizer
	if normalizer == nil {
		normalizer = NewRecordNormalizer()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	cfg := deps.Config
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	if cfg.ProductPageCap <= 0 {
		cfg.ProductPageCap = 500
	}
	if cfg.WarehousePageCap <= 0 {
		cfg.WarehousePageCap = 1000
	}
	if cfg.ProductMaxDuration <= 0 {
		cfg.ProductMaxDuration = 180 * time.Second
	}

	return &catalogSyncService{
		fetcher:    deps.Fetcher,
		products:   deps.Products,
		warehouses: deps.Warehouses,
		status:     deps.Status,
		publisher:  deps.Publisher,
		normalizer: normalizer,
		cfg:        cfg,
		logger:     logger.Named("catalog_sync"),
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *catalogSyncService) SyncProducts(ctx context.Context, ownerID string, opts SyncOptions) (SyncResult, error) {
	run := syncRun{
		kind:        domain.SyncKindProducts,
		endpoint:    unleashed.EndpointProducts,
		pageCap:     s.cfg.ProductPageCap,
		maxDuration: s.cfg.ProductMaxDuration,
		upsert:      s.upsertProductRecord,
	}
	if opts.MaxDuration > 0 {
		run.maxDuration = opts.MaxDuration
	}
	return s.run(ctx, ownerID, run, opts)
}

func (s *catalogSyncService) SyncWarehouses(ctx context.Context, ownerID string, opts SyncOptions) (SyncResult, error) {
	run := syncRun{
		kind:     domain.SyncKindWarehouses,
		endpoint: unleashed.EndpointWarehouses,
		pageCap:  s.cfg.WarehousePageCap,
		upsert:   s.upsertWarehouseRecord,
	}
	return s.run(ctx, ownerID, run, opts)
}

func (s *catalogSyncService) Status(ctx context.Context, ownerID string, kind SyncKind) (SyncStatus, error) {
	status, err := s.status.Find(ctx, ownerID, kind)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return SyncStatus{}, ErrSyncStatusNotFound
		}
		return SyncStatus{}, err
	}
	return status, nil
}

// syncRun carries the per-kind parameters of one orchestrated run.
type syncRun struct {
	kind        domain.SyncKind
	endpoint    unleashed.Endpoint
	pageCap     int
	maxDuration time.Duration
	upsert      func(ctx context.Context, record unleashed.RawRecord) (repositories.UpsertResult, error)
}

func (s *catalogSyncService) run(ctx context.Context, ownerID string, run syncRun, opts SyncOptions) (result SyncResult, err error) {
	if ownerID == "" {
		return SyncResult{}, fmt.Errorf("%w: owner id is required", ErrSyncInvalidInput)
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = s.cfg.PageSize
	}

	startedAt := s.clock()
	status := domain.SyncStatus{
		OwnerID:   ownerID,
		Kind:      run.kind,
		Status:    domain.SyncStateRunning,
		StartedAt: startedAt,
		UpdatedAt: startedAt,
	}
	if saveErr := s.status.Save(ctx, status); saveErr != nil {
		return SyncResult{}, fmt.Errorf("persist sync status: %w", saveErr)
	}

	// Any failure below must leave a terminal error snapshot behind rather
	// than an abandoned "running" row that consumers can only age out. The
	// snapshot is written on a detached context so that a cancelled request
	// context (the very failure being recorded) cannot block the write.
	defer func() {
		if err == nil {
			return
		}
		ctx := context.WithoutCancel(ctx)
		status.Status = domain.SyncStateError
		status.Message = err.Error()
		status.UpdatedAt = s.clock()
		if saveErr := s.status.Save(ctx, status); saveErr != nil {
			s.logger.Warn("failed to persist error sync status",
				zap.String("owner_id", ownerID),
				zap.String("kind", string(run.kind)),
				zap.Error(saveErr))
		}
		s.publish(ctx, status)
	}()

	for page := 1; ; page++ {
		fetched, fetchErr := s.fetcher.FetchPage(ctx, run.endpoint, unleashed.QueryParams{
			Page:     page,
			PageSize: pageSize,
		})
		if fetchErr != nil {
			return SyncResult{}, fmt.Errorf("fetch page %d: %w", page, fetchErr)
		}

		result.Batches++
		result.PagesProcessed++

		for _, record := range fetched.Records {
			upserted, upsertErr := run.upsert(ctx, record)
			if upsertErr != nil {
				if errors.Is(upsertErr, ErrMissingCode) {
					s.logger.Debug("skipping record without code",
						zap.String("kind", string(run.kind)),
						zap.Int("page", page))
					continue
				}
				return SyncResult{}, fmt.Errorf("upsert record on page %d: %w", page, upsertErr)
			}
			if upserted.Updated {
				result.Updated++
			} else {
				result.Inserted++
			}
		}

		stop := s.shouldStop(run, opts, page, len(fetched.Records), pageSize, fetched.TotalPages, startedAt)

		status.Batches = result.Batches
		status.Inserted = result.Inserted
		status.Updated = result.Updated
		status.Message = fmt.Sprintf("processed page %d (%d records)", page, len(fetched.Records))
		status.UpdatedAt = s.clock()
		if stop {
			status.Status = domain.SyncStateCompleted
		}
		if saveErr := s.status.Save(ctx, status); saveErr != nil {
			return SyncResult{}, fmt.Errorf("persist sync status: %w", saveErr)
		}

		if stop {
			break
		}
	}

	s.publish(ctx, status)
	s.logger.Info("sync completed",
		zap.String("owner_id", ownerID),
		zap.String("kind", string(run.kind)),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("batches", result.Batches))
	return result, nil
}

// shouldStop evaluates the independent termination heuristics. No single
// upstream signal is trusted on its own: the page-count hint is inconsistently
// present, so the short-page heuristic is the reliable fallback.
func (s *catalogSyncService) shouldStop(run syncRun, opts SyncOptions, page, records, pageSize, totalPages int, startedAt time.Time) bool {
	if records == 0 {
		return true
	}
	if records < pageSize {
		return true
	}
	if opts.MaxPages > 0 && page >= opts.MaxPages {
		return true
	}
	if totalPages > 0 && page >= totalPages {
		return true
	}
	if run.pageCap > 0 && page >= run.pageCap {
		return true
	}
	if run.maxDuration > 0 && s.clock().Sub(startedAt) >= run.maxDuration {
		return true
	}
	return false
}

func (s *catalogSyncService) upsertProductRecord(ctx context.Context, record unleashed.RawRecord) (repositories.UpsertResult, error) {
	product, err := s.normalizer.NormalizeProduct(record)
	if err != nil {
		return repositories.UpsertResult{}, err
	}
	return s.products.Upsert(ctx, product)
}

func (s *catalogSyncService) upsertWarehouseRecord(ctx context.Context, record unleashed.RawRecord) (repositories.UpsertResult, error) {
	warehouse, err := s.normalizer.NormalizeWarehouse(record)
	if err != nil {
		return repositories.UpsertResult{}, err
	}
	return s.warehouses.Upsert(ctx, warehouse)
}

// publish emits a lifecycle event. Publishing is best-effort; a broker outage
// must not fail a sync that already committed its writes.
func (s *catalogSyncService) publish(ctx context.Context, status domain.SyncStatus) {
	if s.publisher == nil {
		return
	}
	event := SyncEvent{
		OwnerID:    status.OwnerID,
		Kind:       status.Kind,
		Status:     status.Status,
		Inserted:   status.Inserted,
		Updated:    status.Updated,
		Batches:    status.Batches,
		OccurredAt: s.clock(),
	}
	if _, err := s.publisher.PublishSyncEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish sync event",
			zap.String("owner_id", status.OwnerID),
			zap.String("kind", string(status.Kind)),
			zap.Error(err))
	}
}
