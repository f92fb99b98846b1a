package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/fretbursts/burst-engine/internal/background"
	"github.com/fretbursts/burst-engine/internal/metrics"
	"github.com/fretbursts/burst-engine/internal/models"
	"github.com/fretbursts/burst-engine/internal/postproc"
)

// PhotonSource supplies the detector sub-streams of every channel.
type PhotonSource interface {
	NumChannels() int
	Photons(ch int, stream string) (models.PhotonStream, error)
}

// BackgroundSource supplies the background rate of every sub-stream.
type BackgroundSource interface {
	Background(ch int, stream string) (models.BackgroundRate, error)
}

// ChannelResult is the outcome of the search on one channel.
type ChannelResult struct {
	Channel int
	// Photons is the accounting stream the burst indices refer to.
	Photons models.PhotonStream
	Bursts  models.BurstSet
	// Searched is the number of photons in the search stream.
	Searched int
	Duration time.Duration
}

// Result collects the per-channel outcomes in channel order.
type Result struct {
	Channels []ChannelResult
}

// Bursts returns the MultiBurstSet of the run.
func (r Result) Bursts() models.MultiBurstSet {
	mb := make(models.MultiBurstSet, len(r.Channels))
	for i, ch := range r.Channels {
		mb[i] = ch.Bursts
	}
	return mb
}

// Streams returns the accounting stream of every channel.
func (r Result) Streams() []models.PhotonStream {
	streams := make([]models.PhotonStream, len(r.Channels))
	for i, ch := range r.Channels {
		streams[i] = ch.Photons
	}
	return streams
}

// Pipeline runs the burst search on every channel of a measurement.
type Pipeline struct {
	logger   *slog.Logger
	searcher *Searcher
	workers  int
}

// NewPipeline constructs a pipeline using at most workers concurrent channel
// searches; workers <= 0 uses GOMAXPROCS.
func NewPipeline(logger *slog.Logger, searcher *Searcher, workers int) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if searcher == nil {
		searcher = NewSearcher(logger)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pipeline{logger: logger, searcher: searcher, workers: workers}
}

// Run searches every channel independently. Cancellation is honoured between
// channels: a channel already being scanned runs to completion, no new
// channel starts once ctx is done.
func (p *Pipeline) Run(ctx context.Context, photons PhotonSource, bg BackgroundSource, params models.SearchParams) (Result, error) {
	if photons == nil {
		return Result{}, fmt.Errorf("%w: photon source not configured", models.ErrInvalidInput)
	}
	if err := params.Validate(); err != nil {
		return Result{}, err
	}
	if params.Threshold.UsesBackground() && bg == nil {
		return Result{}, fmt.Errorf("%w: factor threshold needs a background source", models.ErrInvalidConfig)
	}

	nch := photons.NumChannels()
	results := make([]ChannelResult, nch)
	errs := make([]error, nch)

	workers := p.workers
	if workers > nch {
		workers = nch
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ch := range jobs {
				if err := ctx.Err(); err != nil {
					errs[ch] = err
					continue
				}
				results[ch], errs[ch] = p.runChannel(ch, photons, bg, params)
			}
		}()
	}
	for ch := 0; ch < nch; ch++ {
		jobs <- ch
	}
	close(jobs)
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, fmt.Errorf("burst search cancelled: %w", ctxErr)
		}
		return Result{}, err
	}

	result := Result{Channels: results}
	p.logger.Info("burst search finished",
		slog.Int("channels", nch),
		slog.Int("bursts", result.Bursts().TotalBursts()),
		slog.String("selection", params.Selection.String()),
		slog.String("threshold", params.Threshold.String()))
	return result, nil
}

func (p *Pipeline) runChannel(ch int, photons PhotonSource, bg BackgroundSource, params models.SearchParams) (ChannelResult, error) {
	start := time.Now()
	search, err := collectStreams(ch, photons, params.Selection.Search)
	if err != nil {
		return ChannelResult{}, err
	}

	var rate models.BackgroundRate
	if params.Threshold.UsesBackground() {
		rates := make([]models.BackgroundRate, 0, len(params.Selection.Search))
		for _, name := range params.Selection.Search {
			r, err := bg.Background(ch, name)
			if err != nil {
				return ChannelResult{}, fmt.Errorf("channel %d: %w", ch, err)
			}
			rates = append(rates, r)
		}
		rate = background.Sum(rates...)
	}

	bursts := p.searcher.Search(search, rate, params)
	account := search
	if !params.Selection.SameStreams() {
		account, err = collectStreams(ch, photons, params.Selection.AccountStreams())
		if err != nil {
			return ChannelResult{}, err
		}
		bursts = remap(bursts, account)
	}

	metrics.AddPhotonsScanned(len(search))
	metrics.AddBursts(metrics.StageSearch, bursts.Len())

	elapsed := time.Since(start)
	summary := postproc.Summarize(bursts)
	p.logger.Debug("channel searched",
		slog.Int("channel", ch),
		slog.Int("photons", len(search)),
		slog.Int("bursts", summary.Count),
		slog.Float64("mean_size", summary.MeanSize),
		slog.Duration("elapsed", elapsed))

	return ChannelResult{
		Channel:  ch,
		Photons:  account,
		Bursts:   bursts,
		Searched: len(search),
		Duration: elapsed,
	}, nil
}

func collectStreams(ch int, photons PhotonSource, names []string) (models.PhotonStream, error) {
	streams := make([]models.PhotonStream, 0, len(names))
	for _, name := range names {
		ts, err := photons.Photons(ch, name)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch, err)
		}
		streams = append(streams, ts)
	}
	return mergeStreams(streams), nil
}
