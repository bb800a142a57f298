// Package cache implements the compact binary format used to persist an
// imported shape predictor, so that later runs can skip the dlib import.
//
// A cache file starts with a fixed header followed by the body:
//
//	magic "SLOC" | version u16 | compression u8 | reserved u8 |
//	payload length u64 | body length u64 | CRC-32C(payload) u32 | body
//
// All header fields are little-endian. The body is the payload, compressed
// according to the compression byte. The payload stores counts and indexes
// as unsigned varints and every float32 as its raw IEEE-754 bits, so a
// decoded model is bit for bit identical to the encoded one.
package cache

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/esimov/shapeloc/geom"
	"github.com/esimov/shapeloc/shape"
	"github.com/klauspost/crc32"
)

// Format constants.
const (
	Magic      = "SLOC"
	Version    = 1
	HeaderSize = 28
)

// maxPayload bounds the declared payload size accepted by Decode.
const maxPayload = 1 << 30

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type options struct {
	compression Compression
}

// Option configures Encode.
type Option func(*options)

// WithCompression selects the algorithm applied to the payload. The default is None.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// IsCache reports whether b starts with the cache magic.
func IsCache(b []byte) bool {
	return bytes.HasPrefix(b, []byte(Magic))
}

// Encode serializes the model. The model must satisfy shape.Model.Validate.
func Encode(m *shape.Model, opts ...Option) ([]byte, error) {
	o := options{compression: None}
	for _, opt := range opts {
		opt(&o)
	}

	if m == nil {
		return nil, &shape.SerializationError{Err: shape.Malformed("nil model")}
	}
	if err := m.Validate(); err != nil {
		return nil, &shape.SerializationError{Err: err}
	}

	payload := appendModel(nil, m)
	body, used, err := compress(payload, o.compression)
	if err != nil {
		return nil, &shape.SerializationError{Err: err}
	}

	out := make([]byte, HeaderSize, HeaderSize+len(body))
	copy(out, Magic)
	binary.LittleEndian.PutUint16(out[4:], Version)
	out[6] = byte(used)
	out[7] = 0
	binary.LittleEndian.PutUint64(out[8:], uint64(len(payload)))
	binary.LittleEndian.PutUint64(out[16:], uint64(len(body)))
	binary.LittleEndian.PutUint32(out[24:], checksum(payload))
	return append(out, body...), nil
}

// Decode parses a buffer produced by Encode.
func Decode(b []byte) (*shape.Model, error) {
	if len(b) < HeaderSize {
		if !bytes.HasPrefix([]byte(Magic), b[:min(len(b), len(Magic))]) {
			return nil, shape.Malformed("bad magic %q", b[:min(len(b), len(Magic))])
		}
		return nil, &shape.TruncatedInputError{Needed: HeaderSize - len(b)}
	}
	if !IsCache(b) {
		return nil, shape.Malformed("bad magic %q", b[:len(Magic)])
	}
	if v := binary.LittleEndian.Uint16(b[4:]); v != Version {
		return nil, &shape.UnsupportedVersionError{Found: int64(v)}
	}

	c := Compression(b[6])
	if c > Zstd {
		return nil, shape.Malformed("unknown compression %d", b[6])
	}
	payloadLen := binary.LittleEndian.Uint64(b[8:])
	bodyLen := binary.LittleEndian.Uint64(b[16:])
	sum := binary.LittleEndian.Uint32(b[24:])

	if payloadLen > maxPayload || bodyLen > 2*maxPayload {
		return nil, shape.Malformed("payload length %d, body length %d exceed %d", payloadLen, bodyLen, maxPayload)
	}
	if c == None && bodyLen != payloadLen {
		return nil, shape.Malformed("uncompressed body length %d differs from payload length %d", bodyLen, payloadLen)
	}
	avail := uint64(len(b) - HeaderSize)
	if avail < bodyLen {
		return nil, &shape.TruncatedInputError{Needed: int(bodyLen - avail)}
	}
	if avail > bodyLen {
		return nil, shape.Malformed("%d trailing bytes after body", avail-bodyLen)
	}

	payload, err := decompress(b[HeaderSize:], c, int(payloadLen))
	if err != nil {
		return nil, shape.Malformed("%s body: %v", c, err)
	}
	if uint64(len(payload)) != payloadLen {
		return nil, shape.Malformed("payload length %d, header declares %d", len(payload), payloadLen)
	}
	if got := checksum(payload); got != sum {
		return nil, shape.Malformed("checksum mismatch: got %08x, want %08x", got, sum)
	}

	r := &reader{buf: payload}
	m, err := r.model()
	if err != nil {
		return nil, err
	}
	if r.off != len(payload) {
		return nil, shape.Malformed("%d unread payload bytes", len(payload)-r.off)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func checksum(payload []byte) uint32 {
	return crc32.Checksum(payload, castagnoli)
}

func appendCount(dst []byte, n int) []byte {
	return binary.AppendUvarint(dst, uint64(n))
}

func appendFloat(dst []byte, f float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
}

func appendMatrix(dst []byte, m *shape.Matrix) []byte {
	dst = appendCount(dst, m.Rows)
	dst = appendCount(dst, m.Cols)
	for _, v := range m.Data {
		dst = appendFloat(dst, v)
	}
	return dst
}

func appendModel(dst []byte, m *shape.Model) []byte {
	dst = appendMatrix(dst, &m.InitialShape)
	dst = appendCount(dst, len(m.Stages))
	for s := range m.Stages {
		stage := &m.Stages[s]

		dst = appendCount(dst, len(stage.Forest))
		for t := range stage.Forest {
			tree := &stage.Forest[t]
			dst = appendCount(dst, len(tree.Splits))
			for _, sp := range tree.Splits {
				dst = appendCount(dst, sp.Idx1)
				dst = appendCount(dst, sp.Idx2)
				dst = appendFloat(dst, sp.Thresh)
			}
			dst = appendCount(dst, len(tree.Leaves))
			for l := range tree.Leaves {
				dst = appendMatrix(dst, &tree.Leaves[l])
			}
		}

		dst = appendCount(dst, len(stage.Anchors))
		for _, a := range stage.Anchors {
			dst = appendCount(dst, a)
		}
		for _, d := range stage.Deltas {
			dst = appendFloat(dst, d.X)
			dst = appendFloat(dst, d.Y)
		}
	}
	return dst
}

// reader walks a decompressed payload.
type reader struct {
	buf []byte
	off int
}

func (r *reader) count() (int, error) {
	v, n := binary.Uvarint(r.buf[r.off:])
	switch {
	case n == 0:
		return 0, &shape.TruncatedInputError{Needed: 1}
	case n < 0:
		return 0, shape.Malformed("varint overflow at offset %d", r.off)
	case v > math.MaxInt32:
		return 0, shape.Malformed("count %d at offset %d out of range", v, r.off)
	}
	r.off += n
	return int(v), nil
}

// bounded reads a count of elements taking at least size bytes each and
// rejects counts the remaining payload cannot hold.
func (r *reader) bounded(size int) (int, error) {
	n, err := r.count()
	if err != nil {
		return 0, err
	}
	if rest := len(r.buf) - r.off; n > rest/size {
		return 0, &shape.TruncatedInputError{Needed: n*size - rest}
	}
	return n, nil
}

func (r *reader) float() (float32, error) {
	if rest := len(r.buf) - r.off; rest < 4 {
		return 0, &shape.TruncatedInputError{Needed: 4 - rest}
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return math.Float32frombits(v), nil
}

func (r *reader) matrix() (shape.Matrix, error) {
	rows, err := r.count()
	if err != nil {
		return shape.Matrix{}, err
	}
	cols, err := r.count()
	if err != nil {
		return shape.Matrix{}, err
	}
	n := rows * cols
	if rest := len(r.buf) - r.off; cols != 0 && (rows > rest/cols || n > rest/4) {
		return shape.Matrix{}, &shape.TruncatedInputError{Needed: n*4 - rest}
	}
	m := shape.NewMatrix(rows, cols)
	for i := range m.Data {
		if m.Data[i], err = r.float(); err != nil {
			return shape.Matrix{}, err
		}
	}
	return m, nil
}

func (r *reader) tree() (shape.RegressionTree, error) {
	var t shape.RegressionTree

	n, err := r.bounded(6)
	if err != nil {
		return t, err
	}
	t.Splits = make([]shape.SplitFeature, n)
	for i := range t.Splits {
		sp := &t.Splits[i]
		if sp.Idx1, err = r.count(); err != nil {
			return t, err
		}
		if sp.Idx2, err = r.count(); err != nil {
			return t, err
		}
		if sp.Thresh, err = r.float(); err != nil {
			return t, err
		}
	}

	if n, err = r.bounded(2); err != nil {
		return t, err
	}
	t.Leaves = make([]shape.Matrix, n)
	for i := range t.Leaves {
		if t.Leaves[i], err = r.matrix(); err != nil {
			return t, err
		}
	}
	return t, nil
}

func (r *reader) model() (*shape.Model, error) {
	initial, err := r.matrix()
	if err != nil {
		return nil, err
	}
	stages, err := r.bounded(2)
	if err != nil {
		return nil, err
	}

	m := &shape.Model{InitialShape: initial, Stages: make([]shape.Stage, stages)}
	for s := range m.Stages {
		stage := &m.Stages[s]

		trees, err := r.bounded(2)
		if err != nil {
			return nil, err
		}
		stage.Forest = make([]shape.RegressionTree, trees)
		for t := range stage.Forest {
			if stage.Forest[t], err = r.tree(); err != nil {
				return nil, err
			}
		}

		anchors, err := r.bounded(9)
		if err != nil {
			return nil, err
		}
		stage.Anchors = make([]int, anchors)
		for i := range stage.Anchors {
			if stage.Anchors[i], err = r.count(); err != nil {
				return nil, err
			}
		}
		stage.Deltas = make([]geom.Vector2, anchors)
		for i := range stage.Deltas {
			if stage.Deltas[i].X, err = r.float(); err != nil {
				return nil, err
			}
			if stage.Deltas[i].Y, err = r.float(); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}
