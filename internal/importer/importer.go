package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"parking-finder-backend/config"
	"parking-finder-backend/internal/metrics"
	"parking-finder-backend/internal/model"
	"parking-finder-backend/internal/mw"
	"parking-finder-backend/internal/parse"
	"parking-finder-backend/internal/store"
)

// ErrNothingFetched is returned when the feed could not be read at all.
var ErrNothingFetched = errors.New("feed fetch failed with no items retrieved")

// Service periodically pulls parking lots and restriction windows from the
// upstream feed into the store.
type Service struct {
	cfg    *config.Config
	store  store.Store
	cache  mw.ResponseCache
	client *http.Client
}

// NewService creates an importer. cache may be nil; when set it is flushed
// after every successful import.
func NewService(cfg *config.Config, s store.Store, cache mw.ResponseCache) *Service {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.Importer.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.Importer.HTTPProxy)
		if err != nil {
			slog.Warn("invalid importer proxy URL, not using a proxy", "proxy", cfg.Importer.HTTPProxy, "error", err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Service{
		cfg:   cfg,
		store: s,
		cache: cache,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
	}
}

// Run imports once and then again every configured interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Importer.Enabled {
		slog.Info("importer is disabled, not starting")
		return
	}
	slog.Info("starting importer", "interval", s.cfg.Importer.Interval)

	if _, err := s.ImportOnce(ctx); err != nil {
		slog.Error("import cycle failed", "error", err)
	}

	timer := time.NewTimer(s.cfg.Importer.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("importer shutting down")
			return
		case <-timer.C:
			if _, err := s.ImportOnce(ctx); err != nil {
				slog.Error("import cycle failed", "error", err)
			}
			timer.Reset(s.cfg.Importer.Interval)
		}
	}
}

// ImportOnce fetches every feed page and upserts the result. It returns the
// number of lots handed to the store.
func (s *Service) ImportOnce(ctx context.Context) (int, error) {
	slog.Info("executing import cycle")

	var allItems []store.LotItem
	total := 1
	pageSize := s.cfg.Importer.Request.PageSize
	var fetchErr error
	for page := 1; (page-1)*pageSize < total; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			slog.Warn("failed to fetch feed page", "page", page, "error", err)
			fetchErr = err
			break
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total
		allItems = append(allItems, resp.Data.Items...)
		slog.Debug("fetched feed page", "page", page, "total", total, "items", len(allItems))
	}

	// Partial results are still imported.
	if fetchErr != nil && len(allItems) == 0 {
		return 0, fmt.Errorf("%w: %v", ErrNothingFetched, fetchErr)
	}
	if len(allItems) == 0 {
		slog.Info("import cycle finished: no items to process")
		return 0, nil
	}

	for i := range allItems {
		normalizeItem(&allItems[i])
	}

	if err := s.store.UpsertLots(ctx, allItems); err != nil {
		return 0, fmt.Errorf("failed to store imported lots: %w", err)
	}
	metrics.ImportedLotsTotal.Add(float64(len(allItems)))

	if s.cache != nil {
		s.cache.Flush(ctx)
	}

	slog.Info("import cycle finished", "lots", len(allItems))
	return len(allItems), nil
}

// normalizeItem canonicalises status and restriction labels in place.
// Windows whose labels cannot be parsed are dropped.
func normalizeItem(item *store.LotItem) {
	item.ID = strings.TrimSpace(item.ID)
	item.StreetName = strings.TrimSpace(item.StreetName)

	switch status := model.LotStatus(strings.ToLower(strings.TrimSpace(item.Status))); status {
	case model.LotStatusAvailable, model.LotStatusRestricted, model.LotStatusUnset:
		item.Status = string(status)
	default:
		slog.Warn("unknown lot status in feed, clearing", "id", item.ID, "status", item.Status)
		item.Status = string(model.LotStatusUnset)
	}

	windows := item.Restrictions[:0]
	for _, r := range item.Restrictions {
		day, err := parse.Day(r.Day)
		if err != nil {
			slog.Warn("dropping restriction window", "id", item.ID, "error", err)
			continue
		}
		start, err := parse.ClockTime(r.StartTime)
		if err != nil {
			slog.Warn("dropping restriction window", "id", item.ID, "error", err)
			continue
		}
		end, err := parse.ClockTime(r.EndTime)
		if err != nil {
			slog.Warn("dropping restriction window", "id", item.ID, "error", err)
			continue
		}
		r.Day, r.StartTime, r.EndTime = day, start, end
		windows = append(windows, r)
	}
	item.Restrictions = windows
}

// fetchPage fetches a single page of lots from the upstream feed.
func (s *Service) fetchPage(ctx context.Context, page int) (*ApiResponse, error) {
	payload := make(map[string]any)
	for k, v := range s.cfg.Importer.Request.Payload {
		payload[k] = v
	}
	payload["page"] = page
	payload["pageSize"] = s.cfg.Importer.Request.PageSize

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Importer.Request.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Importer.Request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp ApiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feed response: %w", err)
	}
	if apiResp.Code != 0 {
		return nil, fmt.Errorf("feed returned non-zero application code: %d", apiResp.Code)
	}
	return &apiResp, nil
}
