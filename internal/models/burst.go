package models

import "fmt"

// Field identifies a column of the burst record schema. The declaration
// order is the positional order shared with every downstream consumer.
type Field int

const (
	FieldStart Field = iota
	FieldWidth
	FieldSize
	FieldIndexStart
	FieldIndexEnd
	FieldEnd

	// NumFields is the number of columns in a burst row.
	NumFields
)

var fieldNames = [NumFields]string{"tstart", "width", "num_photons", "istart", "iend", "tend"}

// String returns the schema column name.
func (f Field) String() string {
	if f < 0 || f >= NumFields {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// Row is a burst in positional form: tstart, width, num_photons, istart, iend, tend.
type Row [NumFields]int64

// Burst is one detected burst. Values are fixed at construction.
type Burst struct {
	start  int64
	end    int64
	istart int
	iend   int
}

// NewBurst builds the burst spanning photons [istart, iend] of ts.
func NewBurst(ts PhotonStream, istart, iend int) Burst {
	return Burst{start: ts[istart], end: ts[iend], istart: istart, iend: iend}
}

// Span builds a burst from explicit boundary timestamps and indices.
func Span(start, end int64, istart, iend int) Burst {
	return Burst{start: start, end: end, istart: istart, iend: iend}
}

// BurstFromRow converts a positional row, rejecting rows whose derived
// columns disagree with their boundaries.
func BurstFromRow(r Row) (Burst, error) {
	b := Burst{
		start:  r[FieldStart],
		end:    r[FieldEnd],
		istart: int(r[FieldIndexStart]),
		iend:   int(r[FieldIndexEnd]),
	}
	if r[FieldWidth] != b.Width() {
		return Burst{}, fmt.Errorf("%w: width %d does not match tend-tstart %d", ErrInvalidInput, r[FieldWidth], b.Width())
	}
	if r[FieldSize] != int64(b.Size()) {
		return Burst{}, fmt.Errorf("%w: num_photons %d does not match iend-istart+1 %d", ErrInvalidInput, r[FieldSize], b.Size())
	}
	if b.istart < 0 || b.iend < b.istart {
		return Burst{}, fmt.Errorf("%w: bad index span [%d, %d]", ErrInvalidInput, b.istart, b.iend)
	}
	return b, nil
}

// Start is the timestamp of the first photon.
func (b Burst) Start() int64 { return b.start }

// End is the timestamp of the last photon.
func (b Burst) End() int64 { return b.end }

// Width is End - Start.
func (b Burst) Width() int64 { return b.end - b.start }

// IndexStart is the index of the first photon in the stream.
func (b Burst) IndexStart() int { return b.istart }

// IndexEnd is the index of the last photon in the stream.
func (b Burst) IndexEnd() int { return b.iend }

// Size is the number of photons, IndexEnd - IndexStart + 1.
func (b Burst) Size() int { return b.iend - b.istart + 1 }

// Field returns the value of one schema column.
func (b Burst) Field(f Field) int64 {
	switch f {
	case FieldStart:
		return b.start
	case FieldWidth:
		return b.Width()
	case FieldSize:
		return int64(b.Size())
	case FieldIndexStart:
		return int64(b.istart)
	case FieldIndexEnd:
		return int64(b.iend)
	case FieldEnd:
		return b.end
	}
	panic(fmt.Sprintf("models: unknown burst field %d", int(f)))
}

// Row returns the burst in positional form.
func (b Burst) Row() Row {
	var r Row
	for f := Field(0); f < NumFields; f++ {
		r[f] = b.Field(f)
	}
	return r
}

func (b Burst) String() string {
	return fmt.Sprintf("burst{tstart=%d width=%d size=%d istart=%d iend=%d tend=%d}",
		b.start, b.Width(), b.Size(), b.istart, b.iend, b.end)
}
