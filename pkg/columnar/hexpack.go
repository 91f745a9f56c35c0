package columnar

import (
	"encoding/hex"
	"strings"

	"github.com/locustdb/locustdb/pkg/dberrors"
)

const hexpackDigits = "0123456789abcdef"
const hexpackDigitsUpper = "0123456789ABCDEF"

// hexpackable reports whether s is entirely hex digits, the condition
// under which the encoder prefers UnhexpackStrings (4 bits/char
// instead of 8) over UnpackStrings or dictionary encoding.
func hexpackable(s string) (uppercase, lowercase bool) {
	if s == "" {
		return true, true
	}
	upper, lower := true, true
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
			upper = false
		case c >= 'A' && c <= 'F':
			lower = false
		default:
			return false, false
		}
	}
	return upper, lower
}

// hexpackEncode concatenates every string's raw hex-decoded bytes
// with a length prefix per string, mirroring UnhexpackStrings'
// decode contract. uppercase controls the alphabet used to re-encode
// on decode; totalBytes is the sum of decoded byte lengths across all
// strings, needed to size the output buffer up front.
func hexpackEncode(values []string) (data []byte, totalBytes int, uppercase bool) {
	uppercase = true
	for _, s := range values {
		up, low := hexpackable(s)
		if !up {
			uppercase = false
		}
		_ = low
	}

	var lens []int
	var raw []byte
	for _, s := range values {
		decoded, _ := hex.DecodeString(strings.ToLower(s))
		lens = append(lens, len(decoded))
		raw = append(raw, decoded...)
		totalBytes += len(decoded)
	}

	buf := make([]byte, 0, len(values)*2+len(raw))
	for _, l := range lens {
		buf = append(buf, byte(l>>8), byte(l))
	}
	buf = append(buf, raw...)
	return buf, totalBytes, uppercase
}

// unhexpackStrings inverts hexpackEncode: a 2-byte big-endian length
// per string followed by that many raw bytes, all concatenated; total
// raw byte count must equal totalBytes (a sanity check against
// corruption).
func unhexpackStrings(data []byte, uppercase bool, totalBytes int) ([]string, error) {
	alphabet := hexpackDigits
	if uppercase {
		alphabet = hexpackDigitsUpper
	}
	_ = alphabet

	var out []string
	pos := 0
	seenBytes := 0
	for pos < len(data) {
		if pos+2 > len(data) {
			return nil, dberrors.New(dberrors.CorruptData, "unhexpack_strings: truncated length prefix")
		}
		l := int(data[pos])<<8 | int(data[pos+1])
		pos += 2
		if pos+l > len(data) {
			return nil, dberrors.New(dberrors.CorruptData, "unhexpack_strings: truncated string body")
		}
		raw := data[pos : pos+l]
		pos += l
		seenBytes += l
		if uppercase {
			out = append(out, strings.ToUpper(hex.EncodeToString(raw)))
		} else {
			out = append(out, hex.EncodeToString(raw))
		}
	}
	if seenBytes != totalBytes {
		return nil, dberrors.Newf(dberrors.CorruptData, "unhexpack_strings: byte count mismatch: got %d want %d", seenBytes, totalBytes)
	}
	return out, nil
}
