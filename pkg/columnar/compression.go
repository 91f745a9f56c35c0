package columnar

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/locustdb/locustdb/pkg/dberrors"
)

// lz4Compress block-compresses data for the LZ4 codec op.
func lz4Compress(data []byte) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	var c lz4.Compressor
	n, err := c.CompressBlock(data, buf)
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.Internal, "lz4 compress")
	}
	if n == 0 {
		// incompressible input, lz4 returns n==0; store raw
		return append([]byte{0}, data...), nil
	}
	return append([]byte{1}, buf[:n]...), nil
}

// lz4Decompress inverts lz4Compress, returning exactly lenDecoded
// bytes.
func lz4Decompress(data []byte, lenDecoded int) ([]byte, error) {
	if len(data) == 0 {
		return nil, dberrors.New(dberrors.CorruptData, "lz4 block: empty input")
	}
	flag, body := data[0], data[1:]
	if flag == 0 {
		if len(body) != lenDecoded {
			return nil, dberrors.Newf(dberrors.CorruptData, "lz4 raw block length mismatch: got %d want %d", len(body), lenDecoded)
		}
		return body, nil
	}
	out := make([]byte, lenDecoded)
	n, err := lz4.UncompressBlock(body, out)
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.CorruptData, "lz4 decompress")
	}
	if n != lenDecoded {
		return nil, dberrors.Newf(dberrors.CorruptData, "lz4 decompressed length mismatch: got %d want %d", n, lenDecoded)
	}
	return out, nil
}

var zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
var zstdDecoder, _ = zstd.NewReader(nil)

// pcoCompress plays the role of the source's Pco numeric codec: a
// general-purpose compressor (zstd) over the raw float64 bytes. Pco
// itself has no maintained Go binding in the retrieval pack; zstd
// gives comparable compression on the same byte layout. Pco is the only
// user of zstd here; the LZ4 op is the block compressor for other sections.
func pcoCompress(values []float64) ([]byte, error) {
	raw := float64ToBytes(values)
	return zstdEncoder.EncodeAll(raw, nil), nil
}

// pcoDecompress inverts pcoCompress into exactly n float64 values.
func pcoDecompress(data []byte, n int) ([]float64, error) {
	raw, err := zstdDecoder.DecodeAll(data, make([]byte, 0, n*8))
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.CorruptData, "pco (zstd) decompress")
	}
	if len(raw) != n*8 {
		return nil, dberrors.Newf(dberrors.CorruptData, "pco decompressed length mismatch: got %d bytes want %d", len(raw), n*8)
	}
	return bytesToFloat64(raw), nil
}

func float64ToBytes(values []float64) []byte {
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func bytesToFloat64(data []byte) []float64 {
	out := make([]float64, len(data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return out
}

func bytesToInt(data []byte, width IntWidth) []int64 {
	switch width {
	case WidthI8, WidthU8:
		out := make([]int64, len(data))
		for i, b := range data {
			if width == WidthI8 {
				out[i] = int64(int8(b))
			} else {
				out[i] = int64(b)
			}
		}
		return out
	case WidthI16, WidthU16:
		out := make([]int64, len(data)/2)
		for i := range out {
			v := binary.LittleEndian.Uint16(data[i*2:])
			if width == WidthI16 {
				out[i] = int64(int16(v))
			} else {
				out[i] = int64(v)
			}
		}
		return out
	case WidthI32, WidthU32:
		out := make([]int64, len(data)/4)
		for i := range out {
			v := binary.LittleEndian.Uint32(data[i*4:])
			if width == WidthI32 {
				out[i] = int64(int32(v))
			} else {
				out[i] = int64(v)
			}
		}
		return out
	default:
		out := make([]int64, len(data)/8)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
		}
		return out
	}
}

func intToBytes(values []int64, width IntWidth) []byte {
	switch width {
	case WidthI8, WidthU8:
		out := make([]byte, len(values))
		for i, v := range values {
			out[i] = byte(v)
		}
		return out
	case WidthI16, WidthU16:
		out := make([]byte, len(values)*2)
		for i, v := range values {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
		}
		return out
	case WidthI32, WidthU32:
		out := make([]byte, len(values)*4)
		for i, v := range values {
			binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
		}
		return out
	default:
		out := make([]byte, len(values)*8)
		for i, v := range values {
			binary.LittleEndian.PutUint64(out[i*8:], uint64(v))
		}
		return out
	}
}

// unpackStrings decodes a length-prefixed concatenated UTF-8 blob:
// one varint length followed by that many bytes, repeated.
func unpackStrings(data []byte) ([]string, error) {
	var out []string
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, dberrors.Wrap(err, dberrors.CorruptData, "unpack_strings: length prefix")
		}
		buf := make([]byte, n)
		if _, err := r.Read(buf); err != nil {
			return nil, dberrors.Wrap(err, dberrors.CorruptData, "unpack_strings: string body")
		}
		out = append(out, string(buf))
	}
	return out, nil
}

// packStrings is the encoder-side inverse of unpackStrings.
func packStrings(values []string) []byte {
	var buf bytes.Buffer
	tmp := make([]byte, binary.MaxVarintLen64)
	for _, s := range values {
		n := binary.PutUvarint(tmp, uint64(len(s)))
		buf.Write(tmp[:n])
		buf.WriteString(s)
	}
	return buf.Bytes()
}
