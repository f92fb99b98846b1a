// Package photons holds photon timestamp streams in memory and loads them
// from simple timestamp files.
package photons

import (
	"fmt"
	"sort"

	"github.com/fretbursts/burst-engine/internal/models"
)

// Measurement is a set of channels, each made of named detector sub-streams
// (for example "D" and "A" for donor and acceptor emission).
type Measurement struct {
	channels []map[string]models.PhotonStream
}

// NewMeasurement creates a measurement with n empty channels.
func NewMeasurement(n int) *Measurement {
	channels := make([]map[string]models.PhotonStream, n)
	for i := range channels {
		channels[i] = make(map[string]models.PhotonStream)
	}
	return &Measurement{channels: channels}
}

// Add stores a validated sub-stream. The stream is shared, not copied, and
// must not be modified afterwards.
func (m *Measurement) Add(ch int, name string, ts models.PhotonStream) error {
	if ch < 0 || ch >= len(m.channels) {
		return fmt.Errorf("%w: channel %d out of range [0, %d)", models.ErrInvalidInput, ch, len(m.channels))
	}
	if name == "" {
		return fmt.Errorf("%w: empty stream name", models.ErrInvalidInput)
	}
	if err := ts.Validate(); err != nil {
		return fmt.Errorf("channel %d stream %s: %w", ch, name, err)
	}
	m.channels[ch][name] = ts
	return nil
}

// NumChannels returns the number of channels.
func (m *Measurement) NumChannels() int { return len(m.channels) }

// Photons returns one sub-stream of channel ch.
func (m *Measurement) Photons(ch int, name string) (models.PhotonStream, error) {
	if ch < 0 || ch >= len(m.channels) {
		return nil, fmt.Errorf("%w: channel %d out of range [0, %d)", models.ErrInvalidInput, ch, len(m.channels))
	}
	ts, ok := m.channels[ch][name]
	if !ok {
		return nil, fmt.Errorf("%w: channel %d has no stream %q", models.ErrInvalidInput, ch, name)
	}
	return ts, nil
}

// Streams lists the sub-stream names of channel ch in sorted order.
func (m *Measurement) Streams(ch int) []string {
	if ch < 0 || ch >= len(m.channels) {
		return nil
	}
	names := make([]string, 0, len(m.channels[ch]))
	for name := range m.channels[ch] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TotalPhotons counts photons across every stream of every channel.
func (m *Measurement) TotalPhotons() int {
	total := 0
	for _, streams := range m.channels {
		for _, ts := range streams {
			total += len(ts)
		}
	}
	return total
}
