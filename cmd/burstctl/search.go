package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/fretbursts/burst-engine/internal/api"
	"github.com/fretbursts/burst-engine/internal/background"
	"github.com/fretbursts/burst-engine/internal/config"
	"github.com/fretbursts/burst-engine/internal/engine"
	"github.com/fretbursts/burst-engine/internal/models"
	"github.com/fretbursts/burst-engine/internal/photons"
	"github.com/fretbursts/burst-engine/internal/postproc"
)

func searchLocal(ctx context.Context, logger *slog.Logger, m *photons.Measurement, profile *background.Profile, params models.SearchParams, workers int, fuse bool, gap int64) (models.MultiBurstSet, error) {
	var bg engine.BackgroundSource
	if profile != nil {
		table, err := profile.Table()
		if err != nil {
			return nil, err
		}
		bg = table
	}
	result, err := engine.NewPipeline(logger, nil, workers).Run(ctx, m, bg, params)
	if err != nil {
		return nil, err
	}
	mb := result.Bursts()
	if fuse {
		mb = postproc.FuseAll(mb, gap)
	}
	return mb, nil
}

func remoteRequest(cfg *config.Config, m *photons.Measurement, profile *background.Profile, fuse bool, gap int64, skipCache bool) (*api.SearchRequest, error) {
	p := api.RequestParams{
		ClockPeriod: cfg.Search.ClockPeriod,
		MinPhotons:  cfg.Search.MinPhotons,
		Window:      cfg.Search.Window,
		Factor:      cfg.Search.Factor,
		RateHz:      cfg.Search.Rate,
		Selection:   cfg.Search.Selection,
		SkipCache:   skipCache,
	}
	if fuse {
		p.FusionGap = &gap
	}
	return api.NewSearchRequest(m, profile, p)
}

// retryable reports whether a failed call may succeed when repeated.
func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

func searchRemote(ctx context.Context, logger *slog.Logger, addr string, retries, maxBytes int, req *api.SearchRequest) (models.MultiBurstSet, error) {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if maxBytes > 0 {
		opts = append(opts, grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxBytes),
			grpc.MaxCallSendMsgSize(maxBytes),
		))
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()
	client := api.NewClient(conn)

	if retries < 0 {
		retries = 0
	}
	var resp *api.SearchResponse
	attempt := 0
	op := func() error {
		attempt++
		r, err := client.Search(ctx, req)
		if err == nil {
			resp = r
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		logger.Warn("remote search failed, retrying",
			slog.String("address", addr),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("remote search %s: %w", addr, err)
	}
	if resp.Cached {
		logger.Info("remote result served from cache", slog.String("address", addr))
	}
	return api.FromWireSearchResponse(resp)
}
