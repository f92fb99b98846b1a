package api

// Messages of the burst search service. They travel with the CBOR codec;
// integer keys keep the encoding compact and stable across renames.

// SearchRequest asks for a burst search over one measurement.
type SearchRequest struct {
	// ClockPeriod is the macro-time tick in seconds.
	ClockPeriod float64        `cbor:"1,keyasint"`
	Channels    []ChannelInput `cbor:"2,keyasint"`
	MinPhotons  int            `cbor:"3,keyasint"`
	Window      int            `cbor:"4,keyasint"`
	// Exactly one of Factor and RateHz must be set.
	Factor    *float64 `cbor:"5,keyasint,omitempty"`
	RateHz    *float64 `cbor:"6,keyasint,omitempty"`
	Selection string   `cbor:"7,keyasint"`
	// FusionGap, in ticks, fuses bursts after the search when set.
	FusionGap *int64 `cbor:"8,keyasint,omitempty"`
	// BackgroundPeriod is the length in ticks of one entry of
	// StreamInput.BackgroundHz.
	BackgroundPeriod int64 `cbor:"9,keyasint,omitempty"`
	// SkipCache forces a fresh search.
	SkipCache bool `cbor:"10,keyasint,omitempty"`
}

// ChannelInput holds the detector sub-streams of one channel.
type ChannelInput struct {
	Streams []StreamInput `cbor:"1,keyasint"`
}

// StreamInput is one named sub-stream with its background rates.
type StreamInput struct {
	Name       string  `cbor:"1,keyasint"`
	Timestamps []int64 `cbor:"2,keyasint"`
	// BackgroundHz holds one rate per background period; a single value is
	// constant over the whole stream.
	BackgroundHz []float64 `cbor:"3,keyasint,omitempty"`
}

// SearchResponse returns the bursts of every channel in channel order.
type SearchResponse struct {
	Channels []ChannelOutput `cbor:"1,keyasint"`
	// Cached reports that the result came from the result cache.
	Cached bool `cbor:"2,keyasint,omitempty"`
}

// ChannelOutput carries the burst rows of one channel.
type ChannelOutput struct {
	Channel int `cbor:"1,keyasint"`
	// Rows are [tstart, width, num_photons, istart, iend, tend].
	Rows    [][6]int64    `cbor:"2,keyasint"`
	Summary SummaryOutput `cbor:"3,keyasint"`
}

// SummaryOutput aggregates the bursts of one channel.
type SummaryOutput struct {
	Count      int     `cbor:"1,keyasint"`
	Photons    int     `cbor:"2,keyasint"`
	MeanSize   float64 `cbor:"3,keyasint"`
	MeanWidth  float64 `cbor:"4,keyasint"`
	MeanRateHz float64 `cbor:"5,keyasint"`
}
