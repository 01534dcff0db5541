// Package digest computes hex digests of byte slices under a small set of
// named algorithms.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"hash/crc32"
	"sort"
	"strings"

	"github.com/sigurn/crc16"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/convertkit/core/errors"
)

// UnknownAlgorithm is the string SumOrSentinel returns for an unsupported
// algorithm name.
const UnknownAlgorithm = "Unknown algorithm"

// ErrUnknownAlgorithm is wrapped by the error Sum returns for an unsupported
// algorithm name. It also matches errors.ErrUnsupported.
var ErrUnknownAlgorithm = errors.Wrap(errors.ErrUnsupported, "unknown algorithm")

type sumFunc func([]byte) string

var crc16Table = crc16.MakeTable(crc16.CRC16_ARC)

var algorithms = map[string]sumFunc{
	"md5": func(b []byte) string {
		h := md5.Sum(b)
		return hex.EncodeToString(h[:])
	},
	"sha1": func(b []byte) string {
		h := sha1.Sum(b)
		return hex.EncodeToString(h[:])
	},
	"sha256": func(b []byte) string {
		h := sha256.Sum256(b)
		return hex.EncodeToString(h[:])
	},
	"sha384": func(b []byte) string {
		h := sha512.Sum384(b)
		return hex.EncodeToString(h[:])
	},
	"sha512": func(b []byte) string {
		h := sha512.Sum512(b)
		return hex.EncodeToString(h[:])
	},
	"blake3": func(b []byte) string {
		h := blake3.Sum256(b)
		return hex.EncodeToString(h[:])
	},
	"crc16": func(b []byte) string {
		var out [2]byte
		binary.BigEndian.PutUint16(out[:], crc16.Checksum(b, crc16Table))
		return hex.EncodeToString(out[:])
	},
	"crc32": func(b []byte) string {
		var out [4]byte
		binary.BigEndian.PutUint32(out[:], crc32.ChecksumIEEE(b))
		return hex.EncodeToString(out[:])
	},
}

// Normalize maps user-facing names such as "SHA-256" onto table keys.
func Normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "")
}

// Supported reports whether name resolves to a known algorithm.
func Supported(name string) bool {
	_, ok := algorithms[Normalize(name)]
	return ok
}

// Sum returns the lowercase hex digest of data.
func Sum(data []byte, algorithm string) (string, error) {
	fn, ok := algorithms[Normalize(algorithm)]
	if !ok {
		return "", &errors.UnsupportedError{Feature: "hash algorithm", Reason: algorithm, Err: ErrUnknownAlgorithm}
	}
	return fn(data), nil
}

// SumOrSentinel is Sum for callers that expect a string in every case.
func SumOrSentinel(data []byte, algorithm string) string {
	s, err := Sum(data, algorithm)
	if err != nil {
		return UnknownAlgorithm
	}
	return s
}

// SumAll returns the digest of data under every supported algorithm.
func SumAll(data []byte) map[string]string {
	out := make(map[string]string, len(algorithms))
	for name, fn := range algorithms {
		out[name] = fn(data)
	}
	return out
}

// Algorithms lists the supported algorithm names in sorted order.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
