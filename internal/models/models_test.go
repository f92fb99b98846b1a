package models

import (
	"errors"
	"testing"
)

func TestBurstRowOrder(t *testing.T) {
	ts := PhotonStream{0, 1, 2, 3, 50, 51, 52, 53, 54}
	b := NewBurst(ts, 4, 8)

	want := Row{50, 4, 5, 4, 8, 54}
	if got := b.Row(); got != want {
		t.Fatalf("expected row %v, got %v", want, got)
	}
	names := []string{"tstart", "width", "num_photons", "istart", "iend", "tend"}
	for f := Field(0); f < NumFields; f++ {
		if f.String() != names[f] {
			t.Fatalf("field %d: expected %s, got %s", f, names[f], f.String())
		}
	}
}

func TestBurstFromRowRejectsInconsistentColumns(t *testing.T) {
	if _, err := BurstFromRow(Row{0, 3, 4, 0, 3, 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := BurstFromRow(Row{0, 2, 4, 0, 3, 3}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected width mismatch to be rejected, got %v", err)
	}
	if _, err := BurstFromRow(Row{0, 3, 5, 0, 3, 3}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected size mismatch to be rejected, got %v", err)
	}
}

func TestNewBurstSetInvariants(t *testing.T) {
	valid := []Burst{Span(0, 3, 0, 3), Span(50, 54, 4, 8)}
	set, err := NewBurstSet(valid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("expected 2 bursts, got %d", set.Len())
	}

	cases := map[string][]Burst{
		"zero width":       {Span(5, 5, 0, 3)},
		"start not after":  {Span(0, 3, 0, 3), Span(0, 9, 4, 8)},
		"end not after":    {Span(0, 10, 0, 3), Span(5, 9, 4, 8)},
		"overlapping span": {Span(0, 3, 0, 4), Span(50, 54, 4, 8)},
	}
	for name, bursts := range cases {
		if _, err := NewBurstSet(bursts); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestMustBurstSetPanicsWithInvariantError(t *testing.T) {
	defer func() {
		r := recover()
		if _, ok := r.(*InvariantError); !ok {
			t.Fatalf("expected *InvariantError panic, got %v", r)
		}
	}()
	MustBurstSet([]Burst{Span(0, 0, 0, 1)})
}

func TestBurstSetIsolatedFromCaller(t *testing.T) {
	bursts := []Burst{Span(0, 3, 0, 3)}
	set, err := NewBurstSet(bursts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bursts[0] = Span(10, 20, 5, 9)
	if set.At(0).Start() != 0 {
		t.Fatalf("set changed after caller mutation")
	}
}

func TestThresholdFrom(t *testing.T) {
	f, p := 6.0, 1e-4
	if _, err := ThresholdFrom(&f, &p); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected both thresholds to be rejected, got %v", err)
	}
	if _, err := ThresholdFrom(nil, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected missing threshold to be rejected, got %v", err)
	}
	th, err := ThresholdFrom(&f, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if th.Level(2) != 12 || !th.UsesBackground() {
		t.Fatalf("unexpected factor threshold %v", th)
	}
	th, err = ThresholdFrom(nil, &p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if th.Level(2) != p || th.UsesBackground() {
		t.Fatalf("unexpected absolute threshold %v", th)
	}
}

func TestSearchParamsValidate(t *testing.T) {
	sel := Selection{Search: []string{"D"}}
	cases := []struct {
		name   string
		params SearchParams
		ok     bool
	}{
		{"valid", SearchParams{MinPhotons: 10, Window: 10, Threshold: Factor(6), Selection: sel}, true},
		{"L below m", SearchParams{MinPhotons: 5, Window: 10, Threshold: Factor(6), Selection: sel}, false},
		{"m too small", SearchParams{MinPhotons: 5, Window: 1, Threshold: Factor(6), Selection: sel}, false},
		{"no threshold", SearchParams{MinPhotons: 10, Window: 10, Selection: sel}, false},
		{"negative factor", SearchParams{MinPhotons: 10, Window: 10, Threshold: Factor(-1), Selection: sel}, false},
		{"zero rate", SearchParams{MinPhotons: 10, Window: 10, Threshold: Absolute(0), Selection: sel}, false},
		{"no selection", SearchParams{MinPhotons: 10, Window: 10, Threshold: Factor(6)}, false},
	}
	for _, tc := range cases {
		err := tc.params.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", tc.name, err)
		}
	}
}

func TestParseSelection(t *testing.T) {
	sel, err := ParseSelection("DA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sel.SameStreams() || len(sel.Search) != 2 {
		t.Fatalf("unexpected DA selection %+v", sel)
	}

	sel, err = ParseSelection("D+A:D")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.SameStreams() || sel.String() != "D+A:D" {
		t.Fatalf("unexpected split selection %+v", sel)
	}
	if got := sel.AccountStreams(); len(got) != 1 || got[0] != "D" {
		t.Fatalf("unexpected account streams %v", got)
	}

	for _, bad := range []string{"", "D+", "D+D", ":D"} {
		if _, err := ParseSelection(bad); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("selection %q: expected ErrInvalidConfig, got %v", bad, err)
		}
	}
}

func TestPhotonStreamValidate(t *testing.T) {
	if err := (PhotonStream{0, 1, 1, 5}).Validate(); err != nil {
		t.Fatalf("ties must be accepted: %v", err)
	}
	if err := (PhotonStream{0, 5, 4}).Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected decreasing stream to be rejected, got %v", err)
	}
	if err := (PhotonStream{-1, 5}).Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected negative timestamp to be rejected, got %v", err)
	}
}
