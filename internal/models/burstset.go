package models

import (
	"fmt"
)

// InvariantError reports a BurstSet that breaks the record invariants. A
// correct engine never produces one; it is raised as a panic value by code
// that relies on the invariants.
type InvariantError struct {
	Index  int
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("burst invariant violated at record %d: %s", e.Index, e.Reason)
}

// BurstSet is the ordered, immutable sequence of bursts found in one channel.
type BurstSet struct {
	bursts []Burst
}

// EmptyBurstSet is the set with no records.
var EmptyBurstSet = BurstSet{}

// NewBurstSet copies bursts into a set after checking the invariants.
func NewBurstSet(bursts []Burst) (BurstSet, error) {
	owned := append([]Burst(nil), bursts...)
	if err := checkInvariants(owned); err != nil {
		return BurstSet{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return BurstSet{bursts: owned}, nil
}

// BurstSetFromRows decodes positional rows, as received from wire or cache.
func BurstSetFromRows(rows []Row) (BurstSet, error) {
	bursts := make([]Burst, 0, len(rows))
	for i, r := range rows {
		b, err := BurstFromRow(r)
		if err != nil {
			return BurstSet{}, fmt.Errorf("row %d: %w", i, err)
		}
		bursts = append(bursts, b)
	}
	if err := checkInvariants(bursts); err != nil {
		return BurstSet{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return BurstSet{bursts: bursts}, nil
}

// MustBurstSet takes ownership of bursts and panics with *InvariantError
// when they are not a valid set. Used by producers whose output is valid by
// construction.
func MustBurstSet(bursts []Burst) BurstSet {
	if err := checkInvariants(bursts); err != nil {
		panic(err)
	}
	return BurstSet{bursts: bursts}
}

// Len returns the number of bursts.
func (s BurstSet) Len() int { return len(s.bursts) }

// At returns burst i.
func (s BurstSet) At(i int) Burst { return s.bursts[i] }

// Bursts returns a copy of the records.
func (s BurstSet) Bursts() []Burst { return append([]Burst(nil), s.bursts...) }

// Rows returns the records in positional form.
func (s BurstSet) Rows() []Row {
	rows := make([]Row, len(s.bursts))
	for i, b := range s.bursts {
		rows[i] = b.Row()
	}
	return rows
}

// Validate re-checks the invariants of s.
func (s BurstSet) Validate() error {
	if err := checkInvariants(s.bursts); err != nil {
		return err
	}
	return nil
}

func checkInvariants(bursts []Burst) *InvariantError {
	for i, b := range bursts {
		if b.istart < 0 || b.iend < b.istart {
			return &InvariantError{Index: i, Reason: fmt.Sprintf("bad index span [%d, %d]", b.istart, b.iend)}
		}
		if b.end <= b.start {
			return &InvariantError{Index: i, Reason: fmt.Sprintf("non-positive width %d", b.Width())}
		}
		if i == 0 {
			continue
		}
		prev := bursts[i-1]
		if b.start <= prev.start {
			return &InvariantError{Index: i, Reason: fmt.Sprintf("tstart %d not after %d", b.start, prev.start)}
		}
		if b.end <= prev.end {
			return &InvariantError{Index: i, Reason: fmt.Sprintf("tend %d not after %d", b.end, prev.end)}
		}
		if b.istart <= prev.iend {
			return &InvariantError{Index: i, Reason: fmt.Sprintf("istart %d overlaps previous iend %d", b.istart, prev.iend)}
		}
	}
	return nil
}

// MultiBurstSet holds one BurstSet per channel, in channel order.
type MultiBurstSet []BurstSet

// NumChannels returns the channel count.
func (m MultiBurstSet) NumChannels() int { return len(m) }

// TotalBursts sums the burst counts of all channels.
func (m MultiBurstSet) TotalBursts() int {
	total := 0
	for _, s := range m {
		total += s.Len()
	}
	return total
}
