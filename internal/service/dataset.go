package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/audiencelab/scrapewatch/config"
	"github.com/audiencelab/scrapewatch/internal/core"
	apperrors "github.com/audiencelab/scrapewatch/internal/errors"
)

// DatasetServiceOptions groups dependencies for DatasetService.
type DatasetServiceOptions struct {
	Platform core.PlatformClient  // Required: scrape platform API client
	Config   config.MonitorConfig // Required: page size and item cap
	Logger   *slog.Logger         // Optional: structured logger
}

// DatasetService pulls complete datasets from the scrape platform.
//
// Datasets are exposed page by page; this service walks the pages in
// order and accumulates items until the dataset is exhausted or the
// configured item cap is reached. Hitting the cap is not an error:
// the partial result is returned and a warning is logged.
type DatasetService struct {
	platform core.PlatformClient
	config   config.MonitorConfig
	logger   *slog.Logger
}

// NewDatasetService constructs a new DatasetService.
func NewDatasetService(opts DatasetServiceOptions) (*DatasetService, error) {
	if opts.Platform == nil {
		return nil, errors.New("PlatformClient is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "dataset_service")
	}

	return &DatasetService{
		platform: opts.Platform,
		config:   opts.Config,
		logger:   logger,
	}, nil
}

// FetchAll retrieves every item of the given dataset, up to the
// configured cap. The returned truncated flag is true when the cap cut
// the fetch short.
func (s *DatasetService) FetchAll(ctx context.Context, datasetRef string) (items []map[string]any, truncated bool, err error) {
	if datasetRef == "" {
		return nil, false, apperrors.Validation("dataset reference is required")
	}

	pageSize := s.config.DatasetPageSize
	maxItems := s.config.DatasetMaxItems

	offset := 0
	total := -1 // platform-reported dataset size, -1 while unreported
	for {
		limit := pageSize
		if remaining := maxItems - len(items); remaining < limit {
			limit = remaining
		}
		if limit <= 0 {
			// Cap reached with pagination still open. Only a reported
			// total proves the dataset ended exactly at the cap.
			truncated = total < 0 || total > len(items)
			break
		}

		page, err := s.platform.ListItems(ctx, core.ListItemsParams{
			DatasetRef: datasetRef,
			Offset:     offset,
			Limit:      limit,
		})
		if err != nil {
			return nil, false, apperrors.Wrapf(err, apperrors.ErrCodeExternal, "failed to list dataset items at offset %d", offset)
		}

		items = append(items, page.Items...)
		offset += len(page.Items)
		if page.Total > 0 {
			total = page.Total
		}

		if len(page.Items) < limit {
			// Short page means the dataset is exhausted.
			break
		}
		if total > 0 && offset >= total {
			break
		}
	}

	if truncated && s.logger != nil {
		s.logger.WarnContext(ctx, "dataset fetch hit item cap, returning partial dataset",
			"dataset_ref", datasetRef,
			"max_items", maxItems,
		)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "dataset fetched",
			"dataset_ref", datasetRef,
			"items", len(items),
			"truncated", truncated,
		)
	}

	return items, truncated, nil
}
