package cache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/zeebo/blake3"

	"github.com/fretbursts/burst-engine/internal/codec"
	"github.com/fretbursts/burst-engine/internal/metrics"
	"github.com/fretbursts/burst-engine/internal/models"
)

// Key identifies a burst search by the content of its inputs.
type Key [32]byte

func (k Key) String() string { return "bursts:" + hex.EncodeToString(k[:]) }

// resultDomainKey separates result keys from any other BLAKE3 use. The
// bytes are the ASCII domain name, zero-padded to 32 bytes.
var resultDomainKey = [32]byte{
	'b', 'u', 'r', 's', 't', '-', 'e', 'n', 'g', 'i', 'n', 'e', '.', 'r', 'e', 's',
	'u', 'l', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// KeyBuilder hashes search inputs into a Key. Values are written in a
// fixed binary layout with length prefixes so distinct inputs cannot
// produce the same byte sequence.
type KeyBuilder struct {
	hasher  *blake3.Hasher
	scratch [8]byte
}

// NewKeyBuilder starts a new key.
func NewKeyBuilder() *KeyBuilder {
	hasher, err := blake3.NewKeyed(resultDomainKey[:])
	if err != nil {
		panic("cache: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return &KeyBuilder{hasher: hasher}
}

func (k *KeyBuilder) writeUint(v uint64) {
	binary.LittleEndian.PutUint64(k.scratch[:], v)
	k.hasher.Write(k.scratch[:])
}

func (k *KeyBuilder) writeString(s string) {
	k.writeUint(uint64(len(s)))
	k.hasher.Write([]byte(s))
}

// Stream adds one photon sub-stream of channel ch.
func (k *KeyBuilder) Stream(ch int, name string, ts models.PhotonStream) *KeyBuilder {
	k.writeString("stream")
	k.writeUint(uint64(ch))
	k.writeString(name)
	k.writeUint(uint64(len(ts)))
	for _, t := range ts {
		k.writeUint(uint64(t))
	}
	return k
}

// Background adds the background segments of one sub-stream.
func (k *KeyBuilder) Background(ch int, name string, segments []models.Segment) *KeyBuilder {
	k.writeString("background")
	k.writeUint(uint64(ch))
	k.writeString(name)
	k.writeUint(uint64(len(segments)))
	for _, s := range segments {
		k.writeUint(uint64(s.Start))
		k.writeUint(math.Float64bits(s.Rate))
	}
	return k
}

// Params adds the search parameters and the fusion gap, fused reporting
// whether fusion was requested.
func (k *KeyBuilder) Params(p models.SearchParams, fused bool, gap int64) *KeyBuilder {
	k.writeString("params")
	k.writeUint(uint64(p.MinPhotons))
	k.writeUint(uint64(p.Window))
	k.writeString(p.Threshold.String())
	k.writeString(p.Selection.String())
	if fused {
		k.writeUint(1)
		k.writeUint(uint64(gap))
	} else {
		k.writeUint(0)
	}
	return k
}

// Sum returns the finished key.
func (k *KeyBuilder) Sum() Key {
	var key Key
	copy(key[:], k.hasher.Sum(nil))
	return key
}

type storedResult struct {
	Channels [][]models.Row `cbor:"1,keyasint"`
}

// ResultCache stores burst search results keyed by their inputs.
type ResultCache struct {
	provider Provider
	ttl      time.Duration
	logger   *slog.Logger
}

// NewResultCache wraps provider; a nil provider disables caching.
func NewResultCache(provider Provider, ttl time.Duration, logger *slog.Logger) *ResultCache {
	if provider == nil {
		provider = NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultCache{provider: provider, ttl: ttl, logger: logger}
}

// Enabled reports whether results are stored at all.
func (c *ResultCache) Enabled() bool {
	_, noop := c.provider.(NoopProvider)
	return !noop
}

// Get returns the cached result for key. Undecodable entries are dropped
// and reported as a miss.
func (c *ResultCache) Get(ctx context.Context, key Key) (models.MultiBurstSet, bool) {
	data, err := c.provider.Get(ctx, key.String())
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("result cache read failed", slog.String("key", key.String()), slog.Any("error", err))
		}
		metrics.ObserveCacheLookup(false)
		return nil, false
	}
	mb, err := decodeResult(data)
	if err != nil {
		c.logger.Warn("dropping corrupt cache entry", slog.String("key", key.String()), slog.Any("error", err))
		_ = c.provider.Del(ctx, key.String())
		metrics.ObserveCacheLookup(false)
		return nil, false
	}
	metrics.ObserveCacheLookup(true)
	return mb, true
}

// Put stores mb under key.
func (c *ResultCache) Put(ctx context.Context, key Key, mb models.MultiBurstSet) error {
	stored := storedResult{Channels: make([][]models.Row, len(mb))}
	for ch, set := range mb {
		stored.Channels[ch] = set.Rows()
	}
	data, err := codec.MarshalCompressed(stored)
	if err != nil {
		return fmt.Errorf("encode burst result: %w", err)
	}
	if err := c.provider.Set(ctx, key.String(), data, c.ttl); err != nil {
		return fmt.Errorf("store burst result: %w", err)
	}
	return nil
}

// Close releases the provider.
func (c *ResultCache) Close() error { return c.provider.Close() }

func decodeResult(data []byte) (models.MultiBurstSet, error) {
	var stored storedResult
	if err := codec.UnmarshalCompressed(data, &stored); err != nil {
		return nil, err
	}
	mb := make(models.MultiBurstSet, len(stored.Channels))
	for ch, rows := range stored.Channels {
		set, err := models.BurstSetFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch, err)
		}
		mb[ch] = set
	}
	return mb, nil
}
