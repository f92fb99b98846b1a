package photons

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/fretbursts/burst-engine/internal/models"
)

// Format selects how ReadTimestamps decodes its input.
type Format int

const (
	// FormatAuto picks binary for ".bin" and ".bin.zst" paths and text otherwise.
	FormatAuto Format = iota
	// FormatText is one decimal timestamp per line; blank lines and lines
	// starting with '#' are skipped.
	FormatText
	// FormatBinary is a sequence of little-endian int64 values.
	FormatBinary
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// LoadFile reads and validates a timestamp file.
func LoadFile(path string, format Format) (models.PhotonStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open photon file: %w", err)
	}
	defer f.Close()

	if format == FormatAuto {
		format = FormatText
		trimmed := strings.TrimSuffix(path, ".zst")
		if strings.HasSuffix(trimmed, ".bin") {
			format = FormatBinary
		}
	}
	ts, err := ReadTimestamps(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ts, nil
}

// ReadTimestamps decodes a timestamp stream, transparently decompressing
// zstd input, and validates that it is non-decreasing.
func ReadTimestamps(r io.Reader, format Format) (models.PhotonStream, error) {
	br := bufio.NewReaderSize(r, 1<<16)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read photon header: %w", err)
	}

	var src io.Reader = br
	if bytes.Equal(head, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		defer dec.Close()
		src = dec
	}

	var ts models.PhotonStream
	switch format {
	case FormatBinary:
		ts, err = readBinary(src)
	case FormatText, FormatAuto:
		ts, err = readText(src)
	default:
		return nil, fmt.Errorf("unknown photon file format %d", format)
	}
	if err != nil {
		return nil, err
	}
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	return ts, nil
}

func readText(r io.Reader) (models.PhotonStream, error) {
	ts := make(models.PhotonStream, 0, 1024)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", models.ErrInvalidInput, line, err)
		}
		ts = append(ts, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read photon text: %w", err)
	}
	return ts, nil
}

func readBinary(r io.Reader) (models.PhotonStream, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read photon binary: %w", err)
	}
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("%w: binary photon data is %d bytes, not a multiple of 8", models.ErrInvalidInput, len(data))
	}
	ts := make(models.PhotonStream, len(data)/8)
	for i := range ts {
		ts[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return ts, nil
}

// WriteBinary writes ts as little-endian int64 values, zstd-compressed when
// compress is set.
func WriteBinary(w io.Writer, ts models.PhotonStream, compress bool) error {
	out := w
	var enc *zstd.Encoder
	if compress {
		var err error
		enc, err = zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("open zstd writer: %w", err)
		}
		out = enc
	}
	bw := bufio.NewWriter(out)
	var buf [8]byte
	for _, t := range ts {
		binary.LittleEndian.PutUint64(buf[:], uint64(t))
		if _, err := bw.Write(buf[:]); err != nil {
			return fmt.Errorf("write photon binary: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush photon binary: %w", err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("close zstd writer: %w", err)
		}
	}
	return nil
}
