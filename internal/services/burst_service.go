package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fretbursts/burst-engine/internal/api"
	"github.com/fretbursts/burst-engine/internal/cache"
	"github.com/fretbursts/burst-engine/internal/config"
	"github.com/fretbursts/burst-engine/internal/engine"
	"github.com/fretbursts/burst-engine/internal/metrics"
	"github.com/fretbursts/burst-engine/internal/models"
	"github.com/fretbursts/burst-engine/internal/postproc"
	"github.com/fretbursts/burst-engine/internal/utils"
)

// BurstService implements the gRPC BurstSearch service.
type BurstService struct {
	logger   *slog.Logger
	pipeline *engine.Pipeline
	results  *cache.ResultCache
	scans    *utils.ScanTracker
	defaults Defaults
	cacheKey func(api.SearchInput) cache.Key
}

// Defaults fill the search settings a request leaves unset.
type Defaults struct {
	MinPhotons int
	Window     int
	Factor     *float64
	RateHz     *float64
	Selection  string
}

// DefaultsFromConfig takes the defaults from the search section.
func DefaultsFromConfig(cfg config.SearchConfig) Defaults {
	return Defaults{
		MinPhotons: cfg.MinPhotons,
		Window:     cfg.Window,
		Factor:     cfg.Factor,
		RateHz:     cfg.Rate,
		Selection:  cfg.Selection,
	}
}

// WithDefaults sets the defaults applied to incoming requests.
func (s *BurstService) WithDefaults(d Defaults) *BurstService {
	s.defaults = d
	return s
}

func (s *BurstService) applyDefaults(req *api.SearchRequest) *api.SearchRequest {
	out := *req
	if out.MinPhotons == 0 && out.Window == 0 {
		out.MinPhotons, out.Window = s.defaults.MinPhotons, s.defaults.Window
	}
	if out.Factor == nil && out.RateHz == nil {
		out.Factor, out.RateHz = s.defaults.Factor, s.defaults.RateHz
	}
	if out.Selection == "" {
		out.Selection = s.defaults.Selection
	}
	return &out
}

// NewBurstService constructs the burst search service facade. A nil result
// cache disables caching.
func NewBurstService(logger *slog.Logger, pipeline *engine.Pipeline, results *cache.ResultCache) *BurstService {
	if logger == nil {
		logger = slog.Default()
	}
	if results == nil {
		results = cache.NewResultCache(nil, 0, logger)
	}
	return &BurstService{
		logger:   logger,
		pipeline: pipeline,
		results:  results,
		scans:    utils.NewScanTracker(1024),
		cacheKey: CacheKey,
	}
}

// Search runs the burst search, and fusion when requested, over the
// measurement in req.
func (s *BurstService) Search(ctx context.Context, req *api.SearchRequest) (*api.SearchResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}

	in, err := api.FromWireSearchRequest(s.applyDefaults(req))
	if err != nil {
		metrics.ObserveSearch(0, metrics.OutcomeError)
		return nil, toStatus(utils.NewAppError("search", "invalid request", err))
	}

	s.logger.Debug("Search called",
		slog.Int("channels", in.Photons.NumChannels()),
		slog.Int("photons", in.Photons.TotalPhotons()),
		slog.String("selection", in.Params.Selection.String()),
		slog.String("threshold", in.Params.Threshold.String()))

	start := time.Now()
	// the key hashes every photon, so it is only built when a cache exists
	useCache := s.results.Enabled()
	var key cache.Key
	if useCache {
		key = s.cacheKey(in)
	}
	if useCache && !in.SkipCache {
		if mb, ok := s.results.Get(ctx, key); ok {
			metrics.ObserveSearch(time.Since(start), metrics.OutcomeCached)
			return api.ToWireSearchResponse(mb, in.ClockPeriod, true), nil
		}
	}

	mb, err := s.run(ctx, in)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveSearch(duration, metrics.OutcomeError)
		s.logger.Error("burst search failed", slog.Any("error", err))
		return nil, toStatus(err)
	}
	metrics.ObserveSearch(duration, metrics.OutcomeSuccess)

	if useCache {
		if err := s.results.Put(ctx, key, mb); err != nil {
			s.logger.Warn("result cache write failed", slog.Any("error", err))
		}
	}

	s.scans.Observe(duration, in.Photons.TotalPhotons())
	if count := s.scans.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("search latency",
			slog.Duration("p95", s.scans.Percentile(95)),
			slog.Float64("photons_per_second", s.scans.PhotonsPerSecond()),
			slog.Int("samples", count))
	}

	return api.ToWireSearchResponse(mb, in.ClockPeriod, false), nil
}

func (s *BurstService) run(ctx context.Context, in api.SearchInput) (models.MultiBurstSet, error) {
	result, err := s.pipeline.Run(ctx, in.Photons, in.Background(), in.Params)
	if err != nil {
		return nil, utils.NewAppError("search", "burst search failed", err)
	}
	mb := result.Bursts()
	if in.Fuse {
		mb = postproc.FuseAll(mb, in.FusionGap)
		metrics.AddBursts(metrics.StageFused, mb.TotalBursts())
	}
	return mb, nil
}

// Stats is the latency and throughput summary served on the admin router.
type Stats struct {
	Samples          int     `json:"samples"`
	P50Seconds       float64 `json:"p50_seconds"`
	P95Seconds       float64 `json:"p95_seconds"`
	PhotonsPerSecond float64 `json:"photons_per_second"`
}

// Stats reports the recent search latencies.
func (s *BurstService) Stats() Stats {
	return Stats{
		Samples:          s.scans.Count(),
		P50Seconds:       s.scans.Percentile(50).Seconds(),
		P95Seconds:       s.scans.Percentile(95).Seconds(),
		PhotonsPerSecond: s.scans.PhotonsPerSecond(),
	}
}

// CacheKey hashes every input that affects the burst result.
func CacheKey(in api.SearchInput) cache.Key {
	kb := cache.NewKeyBuilder()
	for ch := 0; ch < in.Photons.NumChannels(); ch++ {
		for _, name := range in.Photons.Streams(ch) {
			ts, _ := in.Photons.Photons(ch, name)
			kb.Stream(ch, name, ts)
			if !in.Params.Threshold.UsesBackground() || in.Rates == nil {
				continue
			}
			if rate, ok := in.Rates[ch][name]; ok {
				if seg, ok := rate.(models.Segmented); ok {
					kb.Background(ch, name, seg.Segments())
				}
			}
		}
	}
	return kb.Params(in.Params, in.Fuse, in.FusionGap).Sum()
}

func toStatus(err error) error {
	msg := utils.Message(err)
	switch {
	case errors.Is(err, models.ErrInvalidConfig), errors.Is(err, models.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, msg)
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, msg)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, msg)
	}
	return status.Error(codes.Internal, msg)
}
