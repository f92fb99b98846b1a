package export

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/snksoft/crc"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/fretbursts/burst-engine/internal/models"
)

// Wire layout: a sequence of varint length-prefixed protobuf-wire messages,
// one header followed by one ChannelBursts message per channel, then a
// big-endian CRC-32 of everything before it.
//
//	Header        { 1: version varint, 2: clock_period double, 3: channels varint }
//	ChannelBursts { 1: channel varint, 2: rows packed zigzag varint, 6 per burst }
const wireVersion = 1

const (
	fieldHeaderVersion     protowire.Number = 1
	fieldHeaderClockPeriod protowire.Number = 2
	fieldHeaderChannels    protowire.Number = 3

	fieldChannelIndex protowire.Number = 1
	fieldChannelRows  protowire.Number = 2
)

var crcTable = crc.NewTable(crc.CRC32)

// ErrChecksum reports a wire file whose trailer does not match its content.
var ErrChecksum = errors.New("wire checksum mismatch")

// WriteWire writes mb in the wire layout.
func WriteWire(w io.Writer, mb models.MultiBurstSet, clockPeriod float64) error {
	var header []byte
	header = protowire.AppendTag(header, fieldHeaderVersion, protowire.VarintType)
	header = protowire.AppendVarint(header, wireVersion)
	header = protowire.AppendTag(header, fieldHeaderClockPeriod, protowire.Fixed64Type)
	header = protowire.AppendFixed64(header, math.Float64bits(clockPeriod))
	header = protowire.AppendTag(header, fieldHeaderChannels, protowire.VarintType)
	header = protowire.AppendVarint(header, uint64(len(mb)))

	out := protowire.AppendBytes(nil, header)
	for ch, set := range mb {
		var packed []byte
		for _, row := range set.Rows() {
			for _, v := range row {
				packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(v))
			}
		}
		var msg []byte
		msg = protowire.AppendTag(msg, fieldChannelIndex, protowire.VarintType)
		msg = protowire.AppendVarint(msg, uint64(ch))
		msg = protowire.AppendTag(msg, fieldChannelRows, protowire.BytesType)
		msg = protowire.AppendBytes(msg, packed)
		out = protowire.AppendBytes(out, msg)
	}
	out = binary.BigEndian.AppendUint32(out, uint32(crcTable.CalculateCRC(out)))

	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("write wire bursts: %w", err)
	}
	return nil
}

// ReadWire parses a wire file, verifying the trailer and every burst row.
func ReadWire(r io.Reader) (models.MultiBurstSet, float64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read wire bursts: %w", err)
	}
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("%w: wire file of %d bytes", models.ErrInvalidInput, len(data))
	}
	body, trailer := data[:len(data)-4], data[len(data)-4:]
	if want, got := binary.BigEndian.Uint32(trailer), uint32(crcTable.CalculateCRC(body)); want != got {
		return nil, 0, fmt.Errorf("%w: trailer %08x, content %08x", ErrChecksum, want, got)
	}

	header, rest, err := consumeMessage(body)
	if err != nil {
		return nil, 0, fmt.Errorf("wire header: %w", err)
	}
	version, clockPeriod, nch, err := parseHeader(header)
	if err != nil {
		return nil, 0, err
	}
	if nch < 0 {
		return nil, 0, fmt.Errorf("%w: channel count %d", models.ErrInvalidInput, nch)
	}
	if version != wireVersion {
		return nil, 0, fmt.Errorf("%w: unsupported wire version %d", models.ErrInvalidInput, version)
	}

	mb := make(models.MultiBurstSet, nch)
	seen := make([]bool, nch)
	for len(rest) > 0 {
		var msg []byte
		msg, rest, err = consumeMessage(rest)
		if err != nil {
			return nil, 0, fmt.Errorf("wire channel: %w", err)
		}
		ch, set, err := parseChannel(msg)
		if err != nil {
			return nil, 0, err
		}
		if ch < 0 || ch >= nch || seen[ch] {
			return nil, 0, fmt.Errorf("%w: unexpected channel %d", models.ErrInvalidInput, ch)
		}
		mb[ch], seen[ch] = set, true
	}
	return mb, clockPeriod, nil
}

func consumeMessage(b []byte) (msg, rest []byte, err error) {
	msg, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, protowire.ParseError(n))
	}
	return msg, b[n:], nil
}

func parseHeader(b []byte) (version uint64, clockPeriod float64, channels int, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, 0, 0, fmt.Errorf("%w: %v", models.ErrInvalidInput, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldHeaderVersion && typ == protowire.VarintType:
			version, n = protowire.ConsumeVarint(b)
		case num == fieldHeaderClockPeriod && typ == protowire.Fixed64Type:
			var bits uint64
			bits, n = protowire.ConsumeFixed64(b)
			clockPeriod = math.Float64frombits(bits)
		case num == fieldHeaderChannels && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			channels = int(v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return 0, 0, 0, fmt.Errorf("%w: %v", models.ErrInvalidInput, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return version, clockPeriod, channels, nil
}

func parseChannel(b []byte) (int, models.BurstSet, error) {
	ch := 0
	var values []int64
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, models.BurstSet{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldChannelIndex && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			ch = int(v)
		case num == fieldChannelRows && typ == protowire.BytesType:
			var packed []byte
			packed, n = protowire.ConsumeBytes(b)
			for len(packed) > 0 {
				v, m := protowire.ConsumeVarint(packed)
				if m < 0 {
					return 0, models.BurstSet{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, protowire.ParseError(m))
				}
				values = append(values, protowire.DecodeZigZag(v))
				packed = packed[m:]
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return 0, models.BurstSet{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, protowire.ParseError(n))
		}
		b = b[n:]
	}

	if len(values)%int(models.NumFields) != 0 {
		return 0, models.BurstSet{}, fmt.Errorf("%w: channel %d has %d values, not whole rows", models.ErrInvalidInput, ch, len(values))
	}
	rows := make([]models.Row, len(values)/int(models.NumFields))
	for i := range rows {
		copy(rows[i][:], values[i*int(models.NumFields):])
	}
	set, err := models.BurstSetFromRows(rows)
	if err != nil {
		return 0, models.BurstSet{}, fmt.Errorf("channel %d: %w", ch, err)
	}
	return ch, set, nil
}
