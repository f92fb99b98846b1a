package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/fretbursts/burst-engine/internal/api"
	"github.com/fretbursts/burst-engine/internal/cache"
	"github.com/fretbursts/burst-engine/internal/config"
	"github.com/fretbursts/burst-engine/internal/engine"
)

func floatPtr(v float64) *float64 { return &v }

func int64Ptr(v int64) *int64 { return &v }

func scenarioRequest() *api.SearchRequest {
	return &api.SearchRequest{
		ClockPeriod: 1,
		Channels: []api.ChannelInput{{Streams: []api.StreamInput{
			{Name: "D", Timestamps: []int64{0, 2, 51, 53}, BackgroundHz: []float64{0.05}},
			{Name: "A", Timestamps: []int64{1, 3, 50, 52, 54}, BackgroundHz: []float64{0.05}},
		}}},
		MinPhotons: 3,
		Window:     3,
		Factor:     floatPtr(2),
		Selection:  "DA",
	}
}

func clearBackground(r *api.SearchRequest) {
	for i := range r.Channels[0].Streams {
		r.Channels[0].Streams[i].BackgroundHz = nil
	}
}

func newService() *BurstService {
	results := cache.NewResultCache(cache.NewMemoryProvider(8), time.Minute, nil)
	return NewBurstService(nil, engine.NewPipeline(nil, nil, 2), results)
}

func startServer(t *testing.T, cfg config.ServerConfig, svc api.BurstSearchServer) *api.Client {
	t.Helper()
	cfg.Address = "127.0.0.1:0"
	server, err := api.NewServer(cfg, svc)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	go func() { _ = server.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})

	conn, err := grpc.NewClient(server.Address(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return api.NewClient(conn)
}

func TestSearchOverGRPC(t *testing.T) {
	client := startServer(t, config.ServerConfig{}, newService())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Search(ctx, scenarioRequest())
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	want := [][6]int64{{0, 3, 4, 0, 3, 3}, {50, 4, 5, 4, 8, 54}}
	if diff := cmp.Diff(want, resp.Channels[0].Rows); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if resp.Cached {
		t.Fatalf("expected a fresh search")
	}
	if s := resp.Channels[0].Summary; s.Count != 2 || s.Photons != 9 {
		t.Fatalf("unexpected summary %+v", s)
	}

	again, err := client.Search(ctx, scenarioRequest())
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !again.Cached {
		t.Fatalf("expected the repeated search to hit the cache")
	}
	if diff := cmp.Diff(want, again.Channels[0].Rows); diff != "" {
		t.Fatalf("cached (-want +got):\n%s", diff)
	}

	mb, err := api.FromWireSearchResponse(again)
	if err != nil || mb.TotalBursts() != 2 {
		t.Fatalf("expected 2 decoded bursts, got %v %v", mb, err)
	}
}

func TestSearchWithFusion(t *testing.T) {
	client := startServer(t, config.ServerConfig{}, newService())
	req := scenarioRequest()
	req.FusionGap = int64Ptr(46)

	resp, err := client.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if diff := cmp.Diff([][6]int64{{0, 54, 9, 0, 8, 54}}, resp.Channels[0].Rows); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestSearchInvalidArgument(t *testing.T) {
	client := startServer(t, config.ServerConfig{}, newService())
	cases := map[string]func(*api.SearchRequest){
		"both thresholds":   func(r *api.SearchRequest) { r.RateHz = floatPtr(1) },
		"no threshold":      func(r *api.SearchRequest) { r.Factor = nil },
		"window too small":  func(r *api.SearchRequest) { r.Window = 1 },
		"L below m":         func(r *api.SearchRequest) { r.MinPhotons = 2 },
		"bad selection":     func(r *api.SearchRequest) { r.Selection = "D+" },
		"unknown stream":    func(r *api.SearchRequest) { r.Selection = "X" },
		"negative gap":      func(r *api.SearchRequest) { r.FusionGap = int64Ptr(-1) },
		"no background":     func(r *api.SearchRequest) { clearBackground(r) },
		"unsorted stream":   func(r *api.SearchRequest) { r.Channels[0].Streams[0].Timestamps = []int64{5, 1} },
		"zero clock period": func(r *api.SearchRequest) { r.ClockPeriod = 0 },
	}
	for name, mutate := range cases {
		req := scenarioRequest()
		mutate(req)
		_, err := client.Search(context.Background(), req)
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("%s: expected invalid argument, got %v", name, err)
		}
	}
}

func TestSearchRateLimited(t *testing.T) {
	client := startServer(t, config.ServerConfig{RequestsPerSecond: 0.001, RequestBurst: 1}, newService())
	if _, err := client.Search(context.Background(), scenarioRequest()); err != nil {
		t.Fatalf("first search: %v", err)
	}
	_, err := client.Search(context.Background(), scenarioRequest())
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("expected resource exhausted, got %v", err)
	}
}

func TestSearchDirectErrors(t *testing.T) {
	svc := newService()
	if _, err := svc.Search(context.Background(), nil); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for nil request, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := scenarioRequest()
	req.SkipCache = true
	if _, err := svc.Search(ctx, req); status.Code(err) != codes.Canceled {
		t.Fatalf("expected canceled, got %v", err)
	}

	unconfigured := NewBurstService(nil, nil, nil)
	if _, err := unconfigured.Search(context.Background(), scenarioRequest()); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
}

func TestCacheKeyDependsOnInputs(t *testing.T) {
	in, err := api.FromWireSearchRequest(scenarioRequest())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	other := scenarioRequest()
	other.Channels[0].Streams[0].BackgroundHz = []float64{0.06}
	in2, err := api.FromWireSearchRequest(other)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if CacheKey(in) == CacheKey(in2) {
		t.Fatalf("expected background change to change the key")
	}
	again, _ := api.FromWireSearchRequest(scenarioRequest())
	if CacheKey(in) != CacheKey(again) {
		t.Fatalf("expected equal inputs to share a key")
	}
}

func TestSearchAppliesDefaults(t *testing.T) {
	factor := 2.0
	svc := newService().WithDefaults(Defaults{MinPhotons: 3, Window: 3, Factor: &factor, Selection: "DA"})
	req := scenarioRequest()
	req.MinPhotons, req.Window, req.Factor, req.Selection = 0, 0, nil, ""

	resp, err := svc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got := len(resp.Channels[0].Rows); got != 2 {
		t.Fatalf("expected 2 bursts with default parameters, got %d", got)
	}
	if req.Window != 0 {
		t.Fatalf("expected the caller's request to stay untouched")
	}
}

func TestStatsAfterSearch(t *testing.T) {
	svc := newService()
	if _, err := svc.Search(context.Background(), scenarioRequest()); err != nil {
		t.Fatalf("search: %v", err)
	}
	if st := svc.Stats(); st.Samples != 1 {
		t.Fatalf("expected one sample, got %+v", st)
	}
}

func TestDisabledCacheSkipsKeyHashing(t *testing.T) {
	svc := NewBurstService(nil, engine.NewPipeline(nil, nil, 2), nil)
	hashed := 0
	svc.cacheKey = func(in api.SearchInput) cache.Key {
		hashed++
		return CacheKey(in)
	}

	for i := 0; i < 2; i++ {
		resp, err := svc.Search(context.Background(), scenarioRequest())
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if resp.Cached {
			t.Fatalf("expected no cache hit without a provider")
		}
	}
	if hashed != 0 {
		t.Fatalf("expected no cache key without a provider, built %d", hashed)
	}

	enabled := newService()
	enabled.cacheKey = svc.cacheKey
	if _, err := enabled.Search(context.Background(), scenarioRequest()); err != nil {
		t.Fatalf("search: %v", err)
	}
	if hashed != 1 {
		t.Fatalf("expected one cache key with a provider, built %d", hashed)
	}
}
