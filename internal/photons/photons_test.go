package photons

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fretbursts/burst-engine/internal/models"
)

func TestMeasurementAddAndLookup(t *testing.T) {
	m := NewMeasurement(2)
	if err := m.Add(0, "D", models.PhotonStream{1, 2, 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Add(0, "A", models.PhotonStream{4}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Add(2, "D", nil); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected out of range channel error, got %v", err)
	}
	if err := m.Add(1, "D", models.PhotonStream{3, 2}); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected decreasing stream to be rejected, got %v", err)
	}

	ts, err := m.Photons(0, "D")
	if err != nil || len(ts) != 3 {
		t.Fatalf("unexpected lookup result %v, %v", ts, err)
	}
	if _, err := m.Photons(1, "D"); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected missing stream error, got %v", err)
	}
	if diff := cmp.Diff([]string{"A", "D"}, m.Streams(0)); diff != "" {
		t.Fatalf("unexpected stream names (-want +got):\n%s", diff)
	}
	if m.TotalPhotons() != 4 {
		t.Fatalf("expected 4 photons, got %d", m.TotalPhotons())
	}
}

func TestReadTimestampsText(t *testing.T) {
	input := "# macrotimes\n0\n1\n\n2\n50\n"
	ts, err := ReadTimestamps(strings.NewReader(input), FormatText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(models.PhotonStream{0, 1, 2, 50}, ts); diff != "" {
		t.Fatalf("unexpected timestamps (-want +got):\n%s", diff)
	}

	if _, err := ReadTimestamps(strings.NewReader("1\nx\n"), FormatText); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if _, err := ReadTimestamps(strings.NewReader("5\n4\n"), FormatText); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected ordering error, got %v", err)
	}
}

func TestBinaryRoundTripCompressed(t *testing.T) {
	want := models.PhotonStream{0, 1, 2, 3, 50, 51, 52, 53, 54}
	for _, compress := range []bool{false, true} {
		var buf bytes.Buffer
		if err := WriteBinary(&buf, want, compress); err != nil {
			t.Fatalf("write: %v", err)
		}
		got, err := ReadTimestamps(&buf, FormatBinary)
		if err != nil {
			t.Fatalf("read (compress=%v): %v", compress, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("compress=%v (-want +got):\n%s", compress, diff)
		}
	}
}

func TestLoadFileDetectsBinaryExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "donor.bin.zst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := WriteBinary(f, models.PhotonStream{10, 20, 30}, true); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	ts, err := LoadFile(path, FormatAuto)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ts) != 3 || ts[2] != 30 {
		t.Fatalf("unexpected stream %v", ts)
	}
}

func TestReadTimestampsEmpty(t *testing.T) {
	ts, err := ReadTimestamps(bytes.NewReader(nil), FormatBinary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts) != 0 {
		t.Fatalf("expected empty stream, got %v", ts)
	}
}

func TestSimulateStreams(t *testing.T) {
	sim := Simulation{
		Duration:     1_000_000,
		DonorBg:      1e-3,
		AcceptorBg:   5e-4,
		BurstRate:    1e-4,
		BurstPhotons: 40,
		BurstWidth:   500,
		Efficiency:   0.3,
	}
	donor, acceptor, err := Simulate(rand.New(rand.NewSource(3)), sim)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	for name, ts := range map[string]models.PhotonStream{"donor": donor, "acceptor": acceptor} {
		if err := ts.Validate(); err != nil {
			t.Fatalf("%s stream invalid: %v", name, err)
		}
		if len(ts) == 0 || ts[len(ts)-1] >= sim.Duration {
			t.Fatalf("%s stream outside [0, %d): %d photons", name, sim.Duration, len(ts))
		}
	}
	// about 1000 donor and 500 acceptor background photons plus 100 bursts
	// of about 40 photons, 30% of them acceptor
	if len(donor) < 3000 || len(donor) > 5000 {
		t.Fatalf("unexpected donor count %d", len(donor))
	}
	if len(acceptor) < 1200 || len(acceptor) > 2600 {
		t.Fatalf("unexpected acceptor count %d", len(acceptor))
	}
}

func TestSimulateBackgroundOnly(t *testing.T) {
	donor, acceptor, err := Simulate(rand.New(rand.NewSource(1)), Simulation{Duration: 100, DonorBg: 0})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if len(donor) != 0 || len(acceptor) != 0 {
		t.Fatalf("expected empty streams, got %d and %d photons", len(donor), len(acceptor))
	}
	for _, bad := range []Simulation{
		{Duration: 0},
		{Duration: 10, DonorBg: -1},
		{Duration: 10, BurstRate: 1},
		{Duration: 10, Efficiency: 2},
	} {
		if _, _, err := Simulate(rand.New(rand.NewSource(1)), bad); !errors.Is(err, models.ErrInvalidConfig) {
			t.Fatalf("%+v: expected ErrInvalidConfig, got %v", bad, err)
		}
	}
}
