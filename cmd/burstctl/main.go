// burstctl runs a burst search over photon timestamp files and writes the
// bursts as a text table, a FITS file or the checksummed wire format.
//
// Local mode (default) searches in process with the same pipeline the
// daemon uses. Remote mode (--remote) sends the streams to a running
// burst-engine and retries transient failures with exponential backoff.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/fretbursts/burst-engine/internal/background"
	"github.com/fretbursts/burst-engine/internal/config"
	"github.com/fretbursts/burst-engine/internal/models"
	"github.com/fretbursts/burst-engine/internal/photons"
	"github.com/fretbursts/burst-engine/internal/postproc"
	"github.com/fretbursts/burst-engine/internal/utils"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath     string
	streams        []string
	backgroundPath string
	minPhotons     int
	window         int
	factor         float64
	rateHz         float64
	selection      string
	fuseGap        time.Duration
	clockPeriod    float64
	remote         string
	retries        int
	timeout        time.Duration
	skipCache      bool
	format         string
	out            string
	logLevel       string
	logJSON        bool
	from           string
	minSize        int
}

func newFlagSet(o *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("burstctl", pflag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "path to a burst-engine configuration file providing defaults")
	fs.StringArrayVarP(&o.streams, "stream", "s", nil, "photon stream as [channel:]name=path (repeatable, .bin/.bin.zst are binary)")
	fs.StringVarP(&o.backgroundPath, "background", "b", "", "background profile YAML (required for -F)")
	fs.IntVarP(&o.minPhotons, "min-photons", "L", 0, "minimum photons per burst")
	fs.IntVarP(&o.window, "window", "m", 0, "photons per sliding window")
	fs.Float64VarP(&o.factor, "factor", "F", 0, "threshold as a multiple of the background rate")
	fs.Float64VarP(&o.rateHz, "rate", "P", 0, "absolute threshold rate in Hz")
	fs.StringVar(&o.selection, "selection", "", "stream selection key, search[:account], e.g. DA or D+A:A")
	fs.DurationVar(&o.fuseGap, "fuse-gap", 0, "fuse bursts separated by at most this gap")
	fs.Float64Var(&o.clockPeriod, "clock-period", 0, "macro-time tick in seconds")
	fs.StringVar(&o.remote, "remote", "", "address of a burst-engine gRPC endpoint")
	fs.IntVar(&o.retries, "retries", 5, "retries of a remote search on transient errors")
	fs.DurationVar(&o.timeout, "timeout", 0, "overall search timeout (0 disables)")
	fs.BoolVar(&o.skipCache, "no-cache", false, "bypass the remote result cache")
	fs.StringVarP(&o.format, "format", "f", formatTable, "output format: table, fits or wire")
	fs.StringVarP(&o.out, "out", "o", "", "output file (default stdout)")
	fs.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.BoolVar(&o.logJSON, "log-json", false, "write JSON log records")
	fs.StringVar(&o.from, "from", "", "read bursts from a .fits or wire file instead of searching")
	fs.IntVar(&o.minSize, "min-size", 0, "keep only bursts with at least this many photons")
	return fs
}

func run(args []string, stdout, stderr io.Writer) error {
	var o options
	fs := newFlagSet(&o)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if !validFormat(o.format) {
		return fmt.Errorf("unknown output format %q", o.format)
	}
	if o.from != "" {
		mb, clockPeriod, err := readBursts(o.from)
		if err != nil {
			return err
		}
		return writeResult(stdout, &o, selectBursts(mb, o.minSize), clockPeriod, nil)
	}
	if len(o.streams) == 0 {
		return errors.New("at least one --stream or --from is required")
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg, fs, &o)

	logger := utils.NewLoggerTo(stderr, cfg.Logging.Level, cfg.Logging.JSON)
	params, err := cfg.SearchParams()
	if err != nil {
		return err
	}
	gap, fuse, err := cfg.FusionGapTicks()
	if err != nil {
		return err
	}

	m, err := loadStreams(o.streams)
	if err != nil {
		return err
	}
	var profile *background.Profile
	if o.backgroundPath != "" {
		if profile, err = loadProfile(o.backgroundPath, cfg.Search.ClockPeriod); err != nil {
			return err
		}
	}
	if params.Threshold.UsesBackground() && profile == nil {
		return fmt.Errorf("%w: %s needs a --background profile", models.ErrInvalidConfig, params.Threshold)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	logger.Info("searching bursts",
		slog.Int("channels", m.NumChannels()),
		slog.Int("photons", m.TotalPhotons()),
		slog.String("params", fmt.Sprintf("L=%d m=%d %s %s", params.MinPhotons, params.Window, params.Threshold, params.Selection)),
		slog.String("remote", o.remote),
	)

	start := time.Now()
	var mb models.MultiBurstSet
	if o.remote != "" {
		req, err := remoteRequest(cfg, m, profile, fuse, gap, o.skipCache)
		if err != nil {
			return err
		}
		mb, err = searchRemote(ctx, logger, o.remote, o.retries, cfg.Server.MaxMessageBytes, req)
		if err != nil {
			return err
		}
	} else {
		mb, err = searchLocal(ctx, logger, m, profile, params, cfg.Search.Workers, fuse, gap)
		if err != nil {
			return err
		}
	}
	mb = selectBursts(mb, o.minSize)
	logger.Info("search finished",
		slog.Int("bursts", mb.TotalBursts()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return writeResult(stdout, &o, mb, cfg.Search.ClockPeriod, m)
}

func selectBursts(mb models.MultiBurstSet, minSize int) models.MultiBurstSet {
	if minSize <= 0 {
		return mb
	}
	out := make(models.MultiBurstSet, len(mb))
	for ch, set := range mb {
		out[ch] = postproc.Select(set, postproc.MinSize(minSize))
	}
	return out
}

// writeResult writes to --out when given and to stdout otherwise.
func writeResult(stdout io.Writer, o *options, mb models.MultiBurstSet, clockPeriod float64, m *photons.Measurement) error {
	if o.out == "" {
		return writeOutput(stdout, o.format, mb, clockPeriod, m)
	}
	f, err := os.Create(o.out)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := writeOutput(f, o.format, mb, clockPeriod, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// applyFlags overlays explicitly set flags on the configuration defaults.
func applyFlags(cfg *config.Config, fs *pflag.FlagSet, o *options) {
	if fs.Changed("min-photons") {
		cfg.Search.MinPhotons = o.minPhotons
	}
	if fs.Changed("window") {
		cfg.Search.Window = o.window
	}
	factorSet, rateSet := fs.Changed("factor"), fs.Changed("rate")
	if factorSet {
		f := o.factor
		cfg.Search.Factor = &f
		if !rateSet {
			cfg.Search.Rate = nil
		}
	}
	if rateSet {
		r := o.rateHz
		cfg.Search.Rate = &r
		if !factorSet {
			cfg.Search.Factor = nil
		}
	}
	if fs.Changed("selection") {
		cfg.Search.Selection = o.selection
	}
	if fs.Changed("clock-period") {
		cfg.Search.ClockPeriod = o.clockPeriod
	}
	if fs.Changed("fuse-gap") {
		cfg.Fusion.Enabled = true
		cfg.Fusion.Gap = o.fuseGap
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if fs.Changed("log-json") {
		cfg.Logging.JSON = o.logJSON
	}
}

// loadProfile reads a background profile; a profile without a clock period
// inherits the search clock, a different one is rejected.
func loadProfile(path string, clockPeriod float64) (*background.Profile, error) {
	profile, err := background.LoadProfile(path)
	if err != nil {
		return nil, err
	}
	switch {
	case profile.ClockPeriod == 0:
		profile.ClockPeriod = clockPeriod
	case math.Abs(profile.ClockPeriod-clockPeriod) > 1e-6*clockPeriod:
		return nil, fmt.Errorf("%w: profile clock period %g differs from %g", models.ErrInvalidConfig, profile.ClockPeriod, clockPeriod)
	}
	return profile, nil
}
