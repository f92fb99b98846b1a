package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/fretbursts/burst-engine/internal/export"
	"github.com/fretbursts/burst-engine/internal/models"
	"github.com/fretbursts/burst-engine/internal/photons"
	"github.com/fretbursts/burst-engine/internal/postproc"
	"github.com/fretbursts/burst-engine/internal/utils"
)

const (
	formatTable = "table"
	formatFITS  = "fits"
	formatWire  = "wire"
)

func validFormat(f string) bool {
	return f == formatTable || f == formatFITS || f == formatWire
}

// writeOutput encodes mb in format. m, when set, adds per-stream photon
// counts to the table.
func writeOutput(w io.Writer, format string, mb models.MultiBurstSet, clockPeriod float64, m *photons.Measurement) error {
	switch format {
	case formatFITS:
		return export.WriteFITS(w, mb, clockPeriod)
	case formatWire:
		return export.WriteWire(w, mb, clockPeriod)
	case formatTable:
		return writeTable(w, mb, clockPeriod, m)
	}
	return fmt.Errorf("unknown output format %q", format)
}

// writeTable prints one block per channel: a summary comment followed by
// the burst rows in schema order and, given a measurement, the photons of
// each sub-stream inside every burst.
func writeTable(w io.Writer, mb models.MultiBurstSet, clockPeriod float64, m *photons.Measurement) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for ch, set := range mb {
		s := postproc.Summarize(set)
		fmt.Fprintf(tw, "# channel %d: %d bursts, %d photons, mean size %.1f, mean rate %.4g Hz\n",
			ch, s.Count, s.Photons, s.MeanSize, utils.Hz(s.MeanRate, clockPeriod))

		var names []string
		var counts [][]int
		if m != nil && ch < m.NumChannels() {
			for _, name := range m.Streams(ch) {
				ts, err := m.Photons(ch, name)
				if err != nil {
					return err
				}
				names = append(names, name)
				counts = append(counts, postproc.CountPhotons(set, ts))
			}
		}

		fmt.Fprint(tw, "channel\t")
		for f := models.Field(0); f < models.NumFields; f++ {
			fmt.Fprintf(tw, "%s\t", f)
		}
		for _, name := range names {
			fmt.Fprintf(tw, "n_%s\t", name)
		}
		fmt.Fprintln(tw)
		for i, row := range set.Rows() {
			fmt.Fprintf(tw, "%d\t", ch)
			for _, v := range row {
				fmt.Fprintf(tw, "%d\t", v)
			}
			for k := range names {
				fmt.Fprintf(tw, "%d\t", counts[k][i])
			}
			fmt.Fprintln(tw)
		}
	}
	return tw.Flush()
}

// readBursts loads a burst file written by this tool, FITS for .fits and
// .fit paths and the wire format otherwise.
func readBursts(path string) (models.MultiBurstSet, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open burst file: %w", err)
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fits", ".fit":
		return export.ReadFITS(f)
	}
	return export.ReadWire(f)
}
