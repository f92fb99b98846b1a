package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfig marks a rejected search or fusion configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInvalidInput marks malformed photon or burst data.
	ErrInvalidInput = errors.New("invalid input")
)

// Threshold is the burst criterion: either Factor or Absolute.
type Threshold interface {
	// Level returns the minimum local rate, in events per tick, for a
	// window starting where the background rate is bg.
	Level(bg float64) float64
	// UsesBackground reports whether Level depends on bg.
	UsesBackground() bool
	String() string

	sealed()
}

// Factor qualifies windows whose rate exceeds F times the background.
type Factor float64

// Level implements Threshold.
func (f Factor) Level(bg float64) float64 { return float64(f) * bg }

// UsesBackground implements Threshold.
func (Factor) UsesBackground() bool { return true }

func (f Factor) String() string { return fmt.Sprintf("F=%g", float64(f)) }

func (Factor) sealed() {}

// Absolute qualifies windows whose rate exceeds a fixed rate P, in events
// per tick.
type Absolute float64

// Level implements Threshold.
func (p Absolute) Level(float64) float64 { return float64(p) }

// UsesBackground implements Threshold.
func (Absolute) UsesBackground() bool { return false }

func (p Absolute) String() string { return fmt.Sprintf("P=%g", float64(p)) }

func (Absolute) sealed() {}

// ThresholdFrom resolves the optional F and P settings of a configuration
// into exactly one Threshold.
func ThresholdFrom(f, p *float64) (Threshold, error) {
	switch {
	case f != nil && p != nil:
		return nil, fmt.Errorf("%w: both F and P set", ErrInvalidConfig)
	case f != nil:
		return Factor(*f), nil
	case p != nil:
		return Absolute(*p), nil
	default:
		return nil, fmt.Errorf("%w: one of F or P is required", ErrInvalidConfig)
	}
}

// SearchParams configures one burst search.
type SearchParams struct {
	// MinPhotons is L, the smallest burst kept.
	MinPhotons int
	// Window is m, the number of photons in the sliding window.
	Window    int
	Threshold Threshold
	Selection Selection
}

// Validate reports configuration errors.
func (p SearchParams) Validate() error {
	if p.Window < 2 {
		return fmt.Errorf("%w: window m=%d must be at least 2", ErrInvalidConfig, p.Window)
	}
	if p.MinPhotons < p.Window {
		return fmt.Errorf("%w: min photons L=%d below window m=%d", ErrInvalidConfig, p.MinPhotons, p.Window)
	}
	switch t := p.Threshold.(type) {
	case nil:
		return fmt.Errorf("%w: one of F or P is required", ErrInvalidConfig)
	case Factor:
		if !(t > 0) {
			return fmt.Errorf("%w: factor F=%g must be positive", ErrInvalidConfig, float64(t))
		}
	case Absolute:
		if !(t > 0) {
			return fmt.Errorf("%w: rate P=%g must be positive", ErrInvalidConfig, float64(t))
		}
	}
	if len(p.Selection.Search) == 0 {
		return fmt.Errorf("%w: empty photon selection", ErrInvalidConfig)
	}
	return nil
}

// Selection names the detector sub-streams combined for the search test and
// for the photon accounting of each channel.
type Selection struct {
	Search  []string
	Account []string
}

var selectionAliases = map[string][]string{
	"DA":  {"D", "A"},
	"all": {"D", "A"},
}

// ParseSelection reads a key of the form "search[:account]", where each side
// is a '+'-joined list of sub-stream names. "DA" stands for "D+A". Omitting
// the account side accounts on the search stream.
func ParseSelection(key string) (Selection, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Selection{}, fmt.Errorf("%w: empty selection key", ErrInvalidConfig)
	}
	searchPart, accountPart, hasAccount := strings.Cut(key, ":")
	search, err := parseStreamList(searchPart)
	if err != nil {
		return Selection{}, err
	}
	sel := Selection{Search: search, Account: search}
	if hasAccount {
		account, err := parseStreamList(accountPart)
		if err != nil {
			return Selection{}, err
		}
		sel.Account = account
	}
	return sel, nil
}

func parseStreamList(part string) ([]string, error) {
	part = strings.TrimSpace(part)
	if alias, ok := selectionAliases[part]; ok {
		return append([]string(nil), alias...), nil
	}
	names := make([]string, 0, 2)
	seen := make(map[string]struct{})
	for _, name := range strings.Split(part, "+") {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty stream name in selection %q", ErrInvalidConfig, part)
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: stream %q selected twice", ErrInvalidConfig, name)
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

// SameStreams reports whether search and accounting use the same sub-streams.
func (s Selection) SameStreams() bool {
	if len(s.Account) == 0 {
		return true
	}
	if len(s.Search) != len(s.Account) {
		return false
	}
	set := make(map[string]struct{}, len(s.Search))
	for _, name := range s.Search {
		set[name] = struct{}{}
	}
	for _, name := range s.Account {
		if _, ok := set[name]; !ok {
			return false
		}
	}
	return true
}

// AccountStreams returns the accounting sub-streams, defaulting to Search.
func (s Selection) AccountStreams() []string {
	if len(s.Account) == 0 {
		return s.Search
	}
	return s.Account
}

func (s Selection) String() string {
	search := strings.Join(s.Search, "+")
	if s.SameStreams() {
		return search
	}
	return search + ":" + strings.Join(s.Account, "+")
}
