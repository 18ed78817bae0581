// Package compression implements the pluggable value-payload compressor
// (spec §4.2): a fixed enumeration of codecs behind one Compressor type,
// with preset configurations matching the engine's default Settings.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hunddb/engine/lsmerrors"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Kind enumerates the recognized compression codecs.
type Kind int

const (
	None Kind = iota
	LZ4
	Zstd
	Snappy
)

func (k Kind) String() string {
	switch k {
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	case Snappy:
		return "snappy"
	default:
		return "none"
	}
}

// Config enumerates a codec's tunables. Level is ignored for None and
// Snappy; it ranges 1-9 for LZ4 and 1-22 for Zstd.
type Config struct {
	Kind           Kind
	Level          int
	EnableChecksum bool
	BufferSize     int
}

// Preset names from spec §4.2.
func Balanced() Config { return Config{Kind: LZ4, Level: 1, EnableChecksum: true, BufferSize: 4096} }
func Fast() Config     { return Config{Kind: Snappy, BufferSize: 4096} }
func Best() Config     { return Config{Kind: Zstd, Level: 9, BufferSize: 4096} }
func Ultra() Config    { return Config{Kind: Zstd, Level: 19, BufferSize: 4096} }

// Compressor applies Config's codec to byte buffers. compress/decompress
// are pure functions of their input; None returns the input unchanged.
type Compressor struct {
	cfg Config
}

// New builds a Compressor for cfg.
func New(cfg Config) *Compressor { return &Compressor{cfg: cfg} }

// Kind reports the codec this compressor was built with.
func (c *Compressor) Kind() Kind { return c.cfg.Kind }

// Compress returns data encoded with the configured codec.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	const op = "compression.Compress"
	switch c.cfg.Kind {
	case None:
		return data, nil
	case Snappy:
		return snappy.Encode(nil, data), nil
	case LZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		opts := []lz4.Option{
			lz4.CompressionLevelOption(lz4Level(c.cfg.Level)),
			lz4.ChecksumOption(c.cfg.EnableChecksum),
		}
		if err := w.Apply(opts...); err != nil {
			return nil, lsmerrors.CompressionErr(op, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, lsmerrors.CompressionErr(op, err)
		}
		if err := w.Close(); err != nil {
			return nil, lsmerrors.CompressionErr(op, err)
		}
		return buf.Bytes(), nil
	case Zstd:
		level := zstd.EncoderLevelFromZstd(c.cfg.Level)
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		if err != nil {
			return nil, lsmerrors.CompressionErr(op, err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, lsmerrors.CompressionErr(op, fmt.Errorf("unknown codec %v", c.cfg.Kind))
	}
}

// lz4Level maps the 1-9 scale from Config.Level onto pierrec/lz4's named
// compression levels. Values below 1 select lz4.Fast; values above 9
// clamp to lz4.Level9.
func lz4Level(level int) lz4.CompressionLevel {
	levels := []lz4.CompressionLevel{
		lz4.Fast,
		lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
		lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
	}
	if level < 1 {
		return levels[0]
	}
	if level > 9 {
		return levels[9]
	}
	return levels[level]
}

// Decompress is the inverse of Compress for the same codec.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	const op = "compression.Decompress"
	switch c.cfg.Kind {
	case None:
		return data, nil
	case Snappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, lsmerrors.CompressionErr(op, err)
		}
		return out, nil
	case LZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, lsmerrors.CompressionErr(op, err)
		}
		return out, nil
	case Zstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, lsmerrors.CompressionErr(op, err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, lsmerrors.CompressionErr(op, err)
		}
		return out, nil
	default:
		return nil, lsmerrors.CompressionErr(op, fmt.Errorf("unknown codec %v", c.cfg.Kind))
	}
}
