package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fretbursts/burst-engine/internal/models"
	"github.com/fretbursts/burst-engine/internal/photons"
)

type streamSpec struct {
	channel int
	name    string
	path    string
}

// parseStreamSpec parses [channel:]name=path; the channel defaults to 0.
func parseStreamSpec(s string) (streamSpec, error) {
	key, path, ok := strings.Cut(s, "=")
	if !ok || path == "" {
		return streamSpec{}, fmt.Errorf("%w: stream %q is not [channel:]name=path", models.ErrInvalidInput, s)
	}
	spec := streamSpec{name: key, path: path}
	if ch, name, ok := strings.Cut(key, ":"); ok {
		n, err := strconv.Atoi(ch)
		if err != nil || n < 0 {
			return streamSpec{}, fmt.Errorf("%w: stream %q has invalid channel %q", models.ErrInvalidInput, s, ch)
		}
		spec.channel, spec.name = n, name
	}
	if spec.name == "" {
		return streamSpec{}, fmt.Errorf("%w: stream %q has no name", models.ErrInvalidInput, s)
	}
	return spec, nil
}

// loadStreams reads every stream file into a measurement sized by the
// highest channel named.
func loadStreams(specs []string) (*photons.Measurement, error) {
	parsed := make([]streamSpec, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	channels := 0
	for _, s := range specs {
		spec, err := parseStreamSpec(s)
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("%d:%s", spec.channel, spec.name)
		if seen[key] {
			return nil, fmt.Errorf("%w: stream %s given twice", models.ErrInvalidInput, key)
		}
		seen[key] = true
		if spec.channel >= channels {
			channels = spec.channel + 1
		}
		parsed = append(parsed, spec)
	}

	m := photons.NewMeasurement(channels)
	for _, spec := range parsed {
		ts, err := photons.LoadFile(spec.path, photons.FormatAuto)
		if err != nil {
			return nil, err
		}
		if err := m.Add(spec.channel, spec.name, ts); err != nil {
			return nil, err
		}
	}
	return m, nil
}
