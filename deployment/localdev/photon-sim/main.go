// photon-sim writes a synthetic two-color measurement for local testing of
// burst-engine: donor and acceptor timestamp files plus the matching
// background profile.
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/fretbursts/burst-engine/internal/background"
	"github.com/fretbursts/burst-engine/internal/models"
	"github.com/fretbursts/burst-engine/internal/photons"
	"github.com/fretbursts/burst-engine/internal/utils"
)

func main() {
	var (
		outDir      string
		duration    time.Duration
		clockPeriod float64
		donorHz     float64
		acceptorHz  float64
		burstHz     float64
		burstSize   int
		burstWidth  time.Duration
		efficiency  float64
		seed        int64
		compress    bool
	)
	fs := pflag.NewFlagSet("photon-sim", pflag.ExitOnError)
	fs.StringVarP(&outDir, "out", "o", ".", "output directory")
	fs.DurationVar(&duration, "duration", 10*time.Second, "measurement length")
	fs.Float64Var(&clockPeriod, "clock-period", 12.5e-9, "macro-time tick in seconds")
	fs.Float64Var(&donorHz, "donor-bg", 1500, "donor background rate in Hz")
	fs.Float64Var(&acceptorHz, "acceptor-bg", 800, "acceptor background rate in Hz")
	fs.Float64Var(&burstHz, "bursts", 20, "burst rate in Hz")
	fs.IntVar(&burstSize, "burst-photons", 60, "mean photons per burst")
	fs.DurationVar(&burstWidth, "burst-width", time.Millisecond, "burst duration")
	fs.Float64Var(&efficiency, "efficiency", 0.4, "fraction of burst photons detected as acceptor")
	fs.Int64Var(&seed, "seed", 1, "random seed")
	fs.BoolVar(&compress, "compress", true, "zstd-compress the timestamp files")
	_ = fs.Parse(os.Args[1:])

	logger := utils.NewLogger("info", false)
	if err := simulate(logger, outDir, duration, clockPeriod, donorHz, acceptorHz, burstHz, burstSize, burstWidth, efficiency, seed, compress); err != nil {
		logger.Error("simulation failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func simulate(logger *slog.Logger, outDir string, duration time.Duration, clockPeriod, donorHz, acceptorHz, burstHz float64, burstSize int, burstWidth time.Duration, efficiency float64, seed int64, compress bool) error {
	total, err := utils.Ticks(duration, clockPeriod)
	if err != nil {
		return err
	}
	width, err := utils.Ticks(burstWidth, clockPeriod)
	if err != nil {
		return err
	}
	sim := photons.Simulation{
		Duration:     total,
		DonorBg:      utils.PerTick(donorHz, clockPeriod),
		AcceptorBg:   utils.PerTick(acceptorHz, clockPeriod),
		BurstRate:    utils.PerTick(burstHz, clockPeriod),
		BurstPhotons: burstSize,
		BurstWidth:   width,
		Efficiency:   efficiency,
	}
	donor, acceptor, err := photons.Simulate(rand.New(rand.NewSource(seed)), sim)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	ext := ".bin"
	if compress {
		ext += ".zst"
	}
	for name, ts := range map[string]models.PhotonStream{"D": donor, "A": acceptor} {
		path := filepath.Join(outDir, name+ext)
		if err := writeStream(path, ts, compress); err != nil {
			return err
		}
		logger.Info("stream written", slog.String("path", path), slog.Int("photons", len(ts)))
	}

	profile := background.Profile{
		ClockPeriod: clockPeriod,
		Channels:    []map[string][]float64{{"D": {donorHz}, "A": {acceptorHz}}},
	}
	data, err := yaml.Marshal(&profile)
	if err != nil {
		return fmt.Errorf("encode background profile: %w", err)
	}
	path := filepath.Join(outDir, "background.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write background profile: %w", err)
	}
	logger.Info("background profile written", slog.String("path", path))
	return nil
}

func writeStream(path string, ts models.PhotonStream, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := photons.WriteBinary(f, ts, compress); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
