package background

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fretbursts/burst-engine/internal/models"
	"github.com/fretbursts/burst-engine/internal/utils"
)

// Table holds the background rate of every sub-stream of every channel.
type Table []map[string]models.BackgroundRate

// Background returns the rate of one sub-stream of channel ch.
func (t Table) Background(ch int, stream string) (models.BackgroundRate, error) {
	if ch < 0 || ch >= len(t) {
		return nil, fmt.Errorf("%w: no background for channel %d", models.ErrInvalidInput, ch)
	}
	rate, ok := t[ch][stream]
	if !ok {
		return nil, fmt.Errorf("%w: no background for stream %q in channel %d", models.ErrInvalidInput, stream, ch)
	}
	return rate, nil
}

// Profile is the YAML form of a fitted background: rates in Hz per
// background period, per sub-stream, per channel.
type Profile struct {
	// ClockPeriod is the duration of one macro-time tick in seconds.
	ClockPeriod float64 `yaml:"clockPeriod"`
	// Period is the length of one background period. Zero means each
	// stream has a single constant rate.
	Period   time.Duration          `yaml:"period"`
	Channels []map[string][]float64 `yaml:"channels"`
}

// LoadProfile reads a background profile file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("background profile %s not found: %w", path, err)
		}
		return nil, fmt.Errorf("read background profile: %w", err)
	}
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse background profile: %w", err)
	}
	return &profile, nil
}

// Table converts the profile into per-tick rate lookups.
func (p *Profile) Table() (Table, error) {
	if !(p.ClockPeriod > 0) {
		return nil, fmt.Errorf("%w: clockPeriod must be positive", models.ErrInvalidInput)
	}
	periodTicks := int64(math.Round(p.Period.Seconds() / p.ClockPeriod))
	if p.Period > 0 && periodTicks <= 0 {
		return nil, fmt.Errorf("%w: period %s shorter than one tick", models.ErrInvalidInput, p.Period)
	}

	table := make(Table, len(p.Channels))
	for ch, streams := range p.Channels {
		table[ch] = make(map[string]models.BackgroundRate, len(streams))
		for _, name := range sortedKeys(streams) {
			rate, err := FromHz(streams[name], p.ClockPeriod, periodTicks)
			if err != nil {
				return nil, fmt.Errorf("channel %d stream %s: %w", ch, name, err)
			}
			table[ch][name] = rate
		}
	}
	return table, nil
}

// FromHz converts rates in Hz into a per-tick lookup. A single rate gives a
// Constant; several rates need a positive period in ticks.
func FromHz(hz []float64, clockPeriod float64, periodTicks int64) (models.BackgroundRate, error) {
	switch {
	case len(hz) == 0:
		return nil, fmt.Errorf("%w: no background rates", models.ErrInvalidInput)
	case len(hz) == 1:
		if !(hz[0] >= 0) {
			return nil, fmt.Errorf("%w: background rate %g", models.ErrInvalidInput, hz[0])
		}
		return Constant(utils.PerTick(hz[0], clockPeriod)), nil
	}
	perTick := make([]float64, len(hz))
	for i, r := range hz {
		perTick[i] = utils.PerTick(r, clockPeriod)
	}
	return NewPeriodic(periodTicks, perTick)
}

func sortedKeys(m map[string][]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
