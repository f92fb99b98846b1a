package api

import (
	"fmt"
	"math"

	"github.com/fretbursts/burst-engine/internal/background"
	"github.com/fretbursts/burst-engine/internal/engine"
	"github.com/fretbursts/burst-engine/internal/models"
	"github.com/fretbursts/burst-engine/internal/photons"
	"github.com/fretbursts/burst-engine/internal/postproc"
	"github.com/fretbursts/burst-engine/internal/utils"
)

// SearchInput is a decoded, validated SearchRequest.
type SearchInput struct {
	Photons *photons.Measurement
	// Rates is nil when the request carries no background rates.
	Rates       background.Table
	Params      models.SearchParams
	Fuse        bool
	FusionGap   int64
	ClockPeriod float64
	SkipCache   bool
}

// Background returns the background source of the input, nil when the
// request has no rates.
func (in SearchInput) Background() engine.BackgroundSource {
	if in.Rates == nil {
		return nil
	}
	return in.Rates
}

// FromWireSearchRequest maps the gRPC request into search inputs.
func FromWireSearchRequest(req *SearchRequest) (SearchInput, error) {
	if req == nil {
		return SearchInput{}, fmt.Errorf("%w: request is nil", models.ErrInvalidInput)
	}
	if !(req.ClockPeriod > 0) {
		return SearchInput{}, fmt.Errorf("%w: clock_period must be positive", models.ErrInvalidInput)
	}
	if len(req.Channels) == 0 {
		return SearchInput{}, fmt.Errorf("%w: at least one channel is required", models.ErrInvalidInput)
	}

	var perTick *float64
	if req.RateHz != nil {
		r := utils.PerTick(*req.RateHz, req.ClockPeriod)
		perTick = &r
	}
	threshold, err := models.ThresholdFrom(req.Factor, perTick)
	if err != nil {
		return SearchInput{}, err
	}
	selection, err := models.ParseSelection(req.Selection)
	if err != nil {
		return SearchInput{}, err
	}
	params := models.SearchParams{
		MinPhotons: req.MinPhotons,
		Window:     req.Window,
		Threshold:  threshold,
		Selection:  selection,
	}
	if err := params.Validate(); err != nil {
		return SearchInput{}, err
	}

	in := SearchInput{
		Photons:     photons.NewMeasurement(len(req.Channels)),
		Params:      params,
		ClockPeriod: req.ClockPeriod,
		SkipCache:   req.SkipCache,
	}
	if req.FusionGap != nil {
		if *req.FusionGap < 0 {
			return SearchInput{}, fmt.Errorf("%w: negative fusion gap %d", models.ErrInvalidConfig, *req.FusionGap)
		}
		in.Fuse, in.FusionGap = true, *req.FusionGap
	}

	rates := make(background.Table, len(req.Channels))
	hasRates := false
	for ch, channel := range req.Channels {
		rates[ch] = make(map[string]models.BackgroundRate, len(channel.Streams))
		for _, stream := range channel.Streams {
			if err := in.Photons.Add(ch, stream.Name, models.PhotonStream(stream.Timestamps)); err != nil {
				return SearchInput{}, err
			}
			if len(stream.BackgroundHz) == 0 {
				continue
			}
			rate, err := background.FromHz(stream.BackgroundHz, req.ClockPeriod, req.BackgroundPeriod)
			if err != nil {
				return SearchInput{}, fmt.Errorf("channel %d stream %s: %w", ch, stream.Name, err)
			}
			rates[ch][stream.Name] = rate
			hasRates = true
		}
	}
	if hasRates {
		in.Rates = rates
	}
	return in, nil
}

// ToWireSearchResponse converts burst sets into the gRPC representation.
func ToWireSearchResponse(mb models.MultiBurstSet, clockPeriod float64, cached bool) *SearchResponse {
	resp := &SearchResponse{Channels: make([]ChannelOutput, len(mb)), Cached: cached}
	for ch, set := range mb {
		out := ChannelOutput{Channel: ch, Rows: make([][6]int64, 0, set.Len())}
		for _, row := range set.Rows() {
			out.Rows = append(out.Rows, [6]int64(row))
		}
		s := postproc.Summarize(set)
		out.Summary = SummaryOutput{
			Count:      s.Count,
			Photons:    s.Photons,
			MeanSize:   s.MeanSize,
			MeanWidth:  s.MeanWidth,
			MeanRateHz: utils.Hz(s.MeanRate, clockPeriod),
		}
		resp.Channels[ch] = out
	}
	return resp
}

// FromWireSearchResponse rebuilds validated burst sets from a response.
func FromWireSearchResponse(resp *SearchResponse) (models.MultiBurstSet, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: response is nil", models.ErrInvalidInput)
	}
	mb := make(models.MultiBurstSet, len(resp.Channels))
	for i, ch := range resp.Channels {
		if ch.Channel != i {
			return nil, fmt.Errorf("%w: channel %d reported at position %d", models.ErrInvalidInput, ch.Channel, i)
		}
		rows := make([]models.Row, len(ch.Rows))
		for k, r := range ch.Rows {
			rows[k] = models.Row(r)
		}
		set, err := models.BurstSetFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		mb[i] = set
	}
	return mb, nil
}

// RequestParams are the search settings of a client request.
type RequestParams struct {
	ClockPeriod float64
	MinPhotons  int
	Window      int
	Factor      *float64
	RateHz      *float64
	Selection   string
	FusionGap   *int64
	SkipCache   bool
}

// NewSearchRequest builds a request from a measurement. profile may be nil
// for absolute thresholds; otherwise its rates are attached per stream.
func NewSearchRequest(m *photons.Measurement, profile *background.Profile, p RequestParams) (*SearchRequest, error) {
	req := &SearchRequest{
		ClockPeriod: p.ClockPeriod,
		Channels:    make([]ChannelInput, m.NumChannels()),
		MinPhotons:  p.MinPhotons,
		Window:      p.Window,
		Factor:      p.Factor,
		RateHz:      p.RateHz,
		Selection:   p.Selection,
		FusionGap:   p.FusionGap,
		SkipCache:   p.SkipCache,
	}
	if profile != nil && profile.Period > 0 {
		if !(p.ClockPeriod > 0) {
			return nil, fmt.Errorf("%w: clock period must be positive", models.ErrInvalidConfig)
		}
		req.BackgroundPeriod = int64(math.Round(profile.Period.Seconds() / p.ClockPeriod))
	}
	for ch := 0; ch < m.NumChannels(); ch++ {
		for _, name := range m.Streams(ch) {
			ts, err := m.Photons(ch, name)
			if err != nil {
				return nil, err
			}
			stream := StreamInput{Name: name, Timestamps: []int64(ts)}
			if profile != nil && ch < len(profile.Channels) {
				stream.BackgroundHz = profile.Channels[ch][name]
			}
			req.Channels[ch].Streams = append(req.Channels[ch].Streams, stream)
		}
	}
	return req, nil
}
