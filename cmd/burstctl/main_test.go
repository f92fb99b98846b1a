package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fretbursts/burst-engine/internal/api"
	"github.com/fretbursts/burst-engine/internal/config"
	"github.com/fretbursts/burst-engine/internal/export"
	"github.com/fretbursts/burst-engine/internal/models"
	"github.com/fretbursts/burst-engine/internal/utils"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// scenarioArgs describes the two-stream measurement whose merged stream is
// 0 1 2 3 50 51 52 53 54, one tick per second.
func scenarioArgs(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	donor := writeFile(t, dir, "donor.txt", "# donor\n0\n2\n51\n53\n")
	acceptor := writeFile(t, dir, "acceptor.txt", "1\n3\n50\n52\n54\n")
	return []string{
		"--stream", "0:D=" + donor,
		"--stream", "A=" + acceptor,
		"-m", "3", "-L", "3",
		"--clock-period", "1",
		"--log-level", "error",
	}
}

func TestParseStreamSpec(t *testing.T) {
	got, err := parseStreamSpec("2:DA=/tmp/x.bin.zst")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff(streamSpec{channel: 2, name: "DA", path: "/tmp/x.bin.zst"}, got, cmp.AllowUnexported(streamSpec{})); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if got, err := parseStreamSpec("D=a.txt"); err != nil || got.channel != 0 || got.name != "D" {
		t.Fatalf("expected channel 0 stream D, got %+v (%v)", got, err)
	}
	for _, bad := range []string{"D", "D=", "x:D=a", "-1:D=a", "3:=a", "=a"} {
		if _, err := parseStreamSpec(bad); !errors.Is(err, models.ErrInvalidInput) {
			t.Fatalf("%q: expected ErrInvalidInput, got %v", bad, err)
		}
	}
}

func TestLoadStreamsRejectsDuplicates(t *testing.T) {
	path := writeFile(t, t.TempDir(), "d.txt", "1\n2\n")
	if _, err := loadStreams([]string{"D=" + path, "0:D=" + path}); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	m, err := loadStreams([]string{"D=" + path, "3:A=" + path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.NumChannels() != 4 {
		t.Fatalf("expected 4 channels, got %d", m.NumChannels())
	}
}

func TestRunLocalWire(t *testing.T) {
	out := filepath.Join(t.TempDir(), "bursts.wire")
	args := append(scenarioArgs(t), "-P", "0.2", "--format", "wire", "--out", out)
	var stdout, stderr bytes.Buffer
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v (stderr %s)", err, stderr.String())
	}
	if stdout.Len() != 0 {
		t.Fatalf("expected nothing on stdout with --out, got %q", stdout.String())
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	mb, clock, err := export.ReadWire(f)
	if err != nil {
		t.Fatalf("read wire: %v", err)
	}
	if clock != 1 {
		t.Fatalf("expected clock period 1, got %g", clock)
	}
	want := []models.Row{{0, 3, 4, 0, 3, 3}, {50, 4, 5, 4, 8, 54}}
	if diff := cmp.Diff(want, mb[0].Rows()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestRunFromWireFile(t *testing.T) {
	dir := t.TempDir()
	wire := filepath.Join(dir, "bursts.wire")
	if err := run(append(scenarioArgs(t), "-P", "0.2", "--format", "wire", "--out", wire), &bytes.Buffer{}, &bytes.Buffer{}); err != nil {
		t.Fatalf("search: %v", err)
	}

	var stdout bytes.Buffer
	if err := run([]string{"--from", wire, "--min-size", "5"}, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("read back: %v", err)
	}
	text := stdout.String()
	if !strings.Contains(text, "# channel 0: 1 bursts, 5 photons") {
		t.Fatalf("expected the size filter to keep one burst:\n%s", text)
	}
	if fields := strings.Fields(lastLine(text)); !cmp.Equal(fields, []string{"0", "50", "4", "5", "4", "8", "54"}) {
		t.Fatalf("unexpected burst row %v", fields)
	}

	fits := filepath.Join(dir, "bursts.fits")
	if err := run([]string{"--from", wire, "--format", "fits", "--out", fits}, &bytes.Buffer{}, &bytes.Buffer{}); err != nil {
		t.Fatalf("convert: %v", err)
	}
	mb, _, err := readBursts(fits)
	if err != nil {
		t.Fatalf("read fits: %v", err)
	}
	if got := mb.TotalBursts(); got != 2 {
		t.Fatalf("expected 2 bursts after conversion, got %d", got)
	}
}

func TestRunLocalFusedTable(t *testing.T) {
	args := append(scenarioArgs(t), "-P", "0.2", "--fuse-gap", "46s")
	var stdout, stderr bytes.Buffer
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	text := stdout.String()
	if !strings.Contains(text, "# channel 0: 1 bursts, 9 photons") {
		t.Fatalf("missing summary line:\n%s", text)
	}
	for _, col := range []string{"tstart", "num_photons", "tend"} {
		if !strings.Contains(text, col) {
			t.Fatalf("missing column %s:\n%s", col, text)
		}
	}
	if !strings.Contains(text, "n_A") || !strings.Contains(text, "n_D") {
		t.Fatalf("missing per-stream count columns:\n%s", text)
	}
	if fields := strings.Fields(lastLine(text)); !cmp.Equal(fields, []string{"0", "0", "54", "9", "0", "8", "54", "5", "4"}) {
		t.Fatalf("unexpected burst row %v", fields)
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return lines[len(lines)-1]
}

func TestRunFactorNeedsBackground(t *testing.T) {
	args := append(scenarioArgs(t), "-F", "2")
	err := run(args, &bytes.Buffer{}, &bytes.Buffer{})
	if !errors.Is(err, models.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRunFactorWithProfile(t *testing.T) {
	dir := t.TempDir()
	profile := writeFile(t, dir, "bg.yaml", "clockPeriod: 1\nchannels:\n  - D: [0.05]\n    A: [0.05]\n")
	args := append(scenarioArgs(t), "-F", "2", "-b", profile, "--format", "fits", "--out", filepath.Join(dir, "b.fits"))
	if err := run(args, &bytes.Buffer{}, &bytes.Buffer{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	f, err := os.Open(filepath.Join(dir, "b.fits"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	mb, _, err := export.ReadFITS(f)
	if err != nil {
		t.Fatalf("read fits: %v", err)
	}
	if got := mb.TotalBursts(); got != 2 {
		t.Fatalf("expected 2 bursts, got %d", got)
	}

	mismatch := writeFile(t, dir, "bad.yaml", "clockPeriod: 2\nchannels:\n  - D: [0.05]\n    A: [0.05]\n")
	args = append(scenarioArgs(t), "-F", "2", "-b", mismatch)
	if err := run(args, &bytes.Buffer{}, &bytes.Buffer{}); !errors.Is(err, models.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for a clock mismatch, got %v", err)
	}
}

func TestRunUsageErrors(t *testing.T) {
	if err := run(nil, &bytes.Buffer{}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected an error without streams")
	}
	args := append(scenarioArgs(t), "-P", "0.2", "--format", "csv")
	if err := run(args, &bytes.Buffer{}, &bytes.Buffer{}); err == nil || !strings.Contains(err.Error(), "csv") {
		t.Fatalf("expected unknown format error, got %v", err)
	}
	args = append(scenarioArgs(t), "-P", "0.2", "-F", "2")
	if err := run(args, &bytes.Buffer{}, &bytes.Buffer{}); !errors.Is(err, models.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for both thresholds, got %v", err)
	}
	if err := run([]string{"--help"}, &bytes.Buffer{}, &bytes.Buffer{}); err != nil {
		t.Fatalf("help should not fail: %v", err)
	}
}

func discardLogger() *slog.Logger { return utils.NewLoggerTo(io.Discard, "error", false) }

type flakyServer struct {
	calls    atomic.Int32
	failures int32
	code     codes.Code
}

func (s *flakyServer) Search(ctx context.Context, req *api.SearchRequest) (*api.SearchResponse, error) {
	if s.calls.Add(1) <= s.failures {
		return nil, status.Error(s.code, "not now")
	}
	return &api.SearchResponse{Channels: []api.ChannelOutput{{
		Channel: 0,
		Rows:    [][6]int64{{int64(len(req.Channels[0].Streams)), 1, 2, 0, 1, int64(len(req.Channels[0].Streams)) + 1}},
	}}}, nil
}

func startFake(t *testing.T, srv api.BurstSearchServer) string {
	t.Helper()
	server, err := api.NewServer(config.ServerConfig{Address: "127.0.0.1:0"}, srv)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	go func() { _ = server.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})
	return server.Address()
}

func TestSearchRemoteRetriesTransientErrors(t *testing.T) {
	srv := &flakyServer{failures: 1, code: codes.Unavailable}
	addr := startFake(t, srv)
	req := &api.SearchRequest{ClockPeriod: 1, Channels: []api.ChannelInput{{Streams: []api.StreamInput{{Name: "D"}, {Name: "A"}}}}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mb, err := searchRemote(ctx, discardLogger(), addr, 3, 0, req)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if srv.calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", srv.calls.Load())
	}
	if diff := cmp.Diff([]models.Row{{2, 1, 2, 0, 1, 3}}, mb[0].Rows()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestSearchRemoteStopsOnInvalidArgument(t *testing.T) {
	srv := &flakyServer{failures: 10, code: codes.InvalidArgument}
	addr := startFake(t, srv)
	req := &api.SearchRequest{ClockPeriod: 1, Channels: []api.ChannelInput{{}}}

	_, err := searchRemote(context.Background(), discardLogger(), addr, 3, 0, req)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if srv.calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", srv.calls.Load())
	}
}
