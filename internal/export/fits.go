// Package export writes burst tables for downstream analysis: FITS binary
// tables for astronomy-style tooling and a compact checksummed wire format.
package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/astrogo/fitsio"

	"github.com/fretbursts/burst-engine/internal/models"
)

const fitsTablePrefix = "BURSTS"

func fitsColumns() []fitsio.Column {
	cols := make([]fitsio.Column, models.NumFields)
	for f := models.Field(0); f < models.NumFields; f++ {
		cols[f] = fitsio.Column{Name: f.String(), Format: "K"}
	}
	return cols
}

// WriteFITS writes an empty primary HDU followed by one binary table per
// channel, named BURSTS<ch>, holding the burst rows in schema order.
func WriteFITS(w io.Writer, mb models.MultiBurstSet, clockPeriod float64) error {
	f, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("create fits: %w", err)
	}
	defer f.Close()

	primary, err := fitsio.NewPrimaryHDU(nil)
	if err != nil {
		return fmt.Errorf("fits primary hdu: %w", err)
	}
	if err := primary.Header().Append(
		fitsio.Card{Name: "NCHAN", Value: len(mb), Comment: "number of channels"},
		fitsio.Card{Name: "CLOCKP", Value: clockPeriod, Comment: "clock period [s]"},
	); err != nil {
		return fmt.Errorf("fits primary header: %w", err)
	}
	if err := f.Write(primary); err != nil {
		return fmt.Errorf("write fits primary hdu: %w", err)
	}

	for ch, set := range mb {
		if err := writeChannelTable(f, ch, set, clockPeriod); err != nil {
			return err
		}
	}
	return nil
}

func writeChannelTable(f *fitsio.File, ch int, set models.BurstSet, clockPeriod float64) error {
	table, err := fitsio.NewTable(fmt.Sprintf("%s%d", fitsTablePrefix, ch), fitsColumns(), fitsio.BINARY_TBL)
	if err != nil {
		return fmt.Errorf("fits table for channel %d: %w", ch, err)
	}
	defer table.Close()

	if err := table.Header().Append(
		fitsio.Card{Name: "CHANNEL", Value: ch, Comment: "channel index"},
		fitsio.Card{Name: "CLOCKP", Value: clockPeriod, Comment: "clock period [s]"},
	); err != nil {
		return fmt.Errorf("fits header for channel %d: %w", ch, err)
	}

	for _, row := range set.Rows() {
		if err := table.Write(&row[0], &row[1], &row[2], &row[3], &row[4], &row[5]); err != nil {
			return fmt.Errorf("fits row for channel %d: %w", ch, err)
		}
	}
	if err := f.Write(table); err != nil {
		return fmt.Errorf("write fits table for channel %d: %w", ch, err)
	}
	return nil
}

// ReadFITS reads a file written by WriteFITS. Rows are validated as burst
// records.
func ReadFITS(r io.Reader) (models.MultiBurstSet, float64, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, 0, fmt.Errorf("open fits: %w", err)
	}
	defer f.Close()

	var clockPeriod float64
	channels := map[int]models.BurstSet{}
	for _, hdu := range f.HDUs() {
		table, ok := hdu.(*fitsio.Table)
		if !ok || !strings.HasPrefix(hdu.Name(), fitsTablePrefix) {
			continue
		}
		ch, err := cardInt(table.Header(), "CHANNEL")
		if err != nil {
			return nil, 0, err
		}
		if card := table.Header().Get("CLOCKP"); card != nil {
			if v, ok := card.Value.(float64); ok {
				clockPeriod = v
			}
		}
		set, err := readChannelTable(table)
		if err != nil {
			return nil, 0, fmt.Errorf("channel %d: %w", ch, err)
		}
		if _, dup := channels[ch]; dup {
			return nil, 0, fmt.Errorf("%w: channel %d repeated", models.ErrInvalidInput, ch)
		}
		channels[ch] = set
	}

	order := make([]int, 0, len(channels))
	for ch := range channels {
		order = append(order, ch)
	}
	sort.Ints(order)
	mb := make(models.MultiBurstSet, len(order))
	for i, ch := range order {
		if ch != i {
			return nil, 0, fmt.Errorf("%w: channel %d missing", models.ErrInvalidInput, i)
		}
		mb[i] = channels[ch]
	}
	return mb, clockPeriod, nil
}

func readChannelTable(table *fitsio.Table) (models.BurstSet, error) {
	if table.NumRows() == 0 {
		return models.EmptyBurstSet, nil
	}
	rows, err := table.Read(0, table.NumRows())
	if err != nil {
		return models.BurstSet{}, fmt.Errorf("read fits rows: %w", err)
	}
	defer rows.Close()

	out := make([]models.Row, 0, table.NumRows())
	for rows.Next() {
		var r models.Row
		if err := rows.Scan(&r[0], &r[1], &r[2], &r[3], &r[4], &r[5]); err != nil {
			return models.BurstSet{}, fmt.Errorf("scan fits row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return models.BurstSet{}, fmt.Errorf("iterate fits rows: %w", err)
	}
	return models.BurstSetFromRows(out)
}

func cardInt(h *fitsio.Header, name string) (int, error) {
	card := h.Get(name)
	if card == nil {
		return 0, fmt.Errorf("%w: fits card %s missing", models.ErrInvalidInput, name)
	}
	switch v := card.Value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	}
	return 0, fmt.Errorf("%w: fits card %s has value %v", models.ErrInvalidInput, name, card.Value)
}
