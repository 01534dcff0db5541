package digest

import (
	"errors"
	"strings"
	"testing"

	cerrors "github.com/FocuswithJustin/convertkit/core/errors"
)

// Digests of the empty input.
var emptyVectors = map[string]string{
	"md5":    "d41d8cd98f00b204e9800998ecf8427e",
	"sha1":   "da39a3ee5e6b4b0d3255bfef95601890afd80709",
	"sha256": "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	"sha384": "38b060a751ac96384cd9327eb1b1e36a21fdb71114be07434c0cc7bf63f6e1da274edebfe76f65fbd51ad2f14898b95b",
	"sha512": "cf83e1357eefb8bdf1542850d66d8007d620e4050b5715dc83f4a921d36ce9ce47d0d13c5d85f2b0ff8318d2877eec2f63b931bd47417a81a538327af927da3e",
	"blake3": "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262",
	"crc16":  "0000",
	"crc32":  "00000000",
}

func TestSumEmptyInput(t *testing.T) {
	for algo, want := range emptyVectors {
		got, err := Sum(nil, algo)
		if err != nil {
			t.Errorf("Sum(%s) error = %v", algo, err)
			continue
		}
		if got != want {
			t.Errorf("Sum(%s) = %s, want %s", algo, got, want)
		}
	}
}

func TestSumKnownInput(t *testing.T) {
	data := []byte("123456789")
	tests := map[string]string{
		"crc16":  "bb3d",
		"crc32":  "cbf43926",
		"md5":    "25f9e794323b453885f5181f1b624d0b",
		"sha256": "15e2b0d3c33891ebb0f1ef609ec419420c20e320ce94c65fbc8c3312448eb225",
	}
	for algo, want := range tests {
		if got, _ := Sum(data, algo); got != want {
			t.Errorf("Sum(%q, %s) = %s, want %s", data, algo, got, want)
		}
	}
}

func TestNameNormalization(t *testing.T) {
	want, _ := Sum([]byte("abc"), "sha256")
	for _, name := range []string{"SHA256", "SHA-256", "sha-256", " Sha256 "} {
		got, err := Sum([]byte("abc"), name)
		if err != nil || got != want {
			t.Errorf("Sum(%q) = %s, %v", name, got, err)
		}
	}
	if !Supported("BLAKE-3") {
		t.Error("BLAKE-3 should be supported")
	}
}

func TestUnknownAlgorithm(t *testing.T) {
	_, err := Sum([]byte("x"), "whirlpool")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("error %v does not wrap ErrUnknownAlgorithm", err)
	}
	if !errors.Is(err, cerrors.ErrUnsupported) {
		t.Errorf("error %v does not match ErrUnsupported", err)
	}
	var ue *cerrors.UnsupportedError
	if !errors.As(err, &ue) || ue.Reason != "whirlpool" {
		t.Errorf("error %v is not an UnsupportedError for whirlpool", err)
	}

	if got := SumOrSentinel([]byte("x"), "whirlpool"); got != UnknownAlgorithm {
		t.Errorf("SumOrSentinel = %q, want %q", got, UnknownAlgorithm)
	}
	if got := SumOrSentinel(nil, "md5"); got != emptyVectors["md5"] {
		t.Errorf("SumOrSentinel(md5) = %q", got)
	}
}

func TestSumAllAndAlgorithms(t *testing.T) {
	all := SumAll(nil)
	names := Algorithms()
	if len(all) != len(names) || len(names) != len(emptyVectors) {
		t.Fatalf("SumAll has %d entries, Algorithms has %d", len(all), len(names))
	}
	for i, name := range names {
		if i > 0 && names[i-1] >= name {
			t.Errorf("Algorithms() not sorted: %v", names)
		}
		if all[name] != emptyVectors[name] {
			t.Errorf("SumAll[%s] = %s", name, all[name])
		}
		if strings.ToLower(all[name]) != all[name] {
			t.Errorf("digest for %s is not lowercase", name)
		}
	}
}
