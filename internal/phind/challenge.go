package phind

import (
	"fmt"
	"strings"
)

// Seeds are the PRNG constants the landing page embeds for the current session.
type Seeds struct {
	Multiplier int64 `json:"multiplier"`
	Addend     int64 `json:"addend"`
	Modulus    int64 `json:"modulus"`
}

// Validate reports whether the seeds can drive the PRNG.
func (s Seeds) Validate() error {
	if s.Modulus <= 0 {
		return fmt.Errorf("%w: modulus must be positive, got %d", ErrSeedsNotFound, s.Modulus)
	}
	return nil
}

// Solve computes the challenge for a payload that does not carry one yet.
func Solve(payload map[string]any, seeds Seeds) (float64, error) {
	if err := seeds.Validate(); err != nil {
		return 0, err
	}
	seed := Hash(EncodeURIComponent(Canonicalize(payload)))
	return Transform(PRNG(seed, seeds)), nil
}

// Hash is the rolling multiply-by-31 hash with 32-bit signed wraparound. Runes at or
// above 256 are skipped, which also drops anything outside the basic multilingual plane.
func Hash(s string) int32 {
	var hash int32
	for _, r := range s {
		if r >= 256 {
			continue
		}
		hash = (hash << 5) - hash + int32(r)
	}
	return hash
}

// PRNG maps a hash into [0,1). The remainder is floored so negative hashes stay in range.
func PRNG(seed int32, s Seeds) float64 {
	rem := (int64(seed)*s.Multiplier + s.Addend) % s.Modulus
	if rem < 0 {
		rem += s.Modulus
	}
	return float64(rem) / float64(s.Modulus)
}

// Transform is the affine map applied to the PRNG output.
func Transform(x float64) float64 {
	// explicit conversion keeps the compiler from fusing into an FMA
	return float64(3.87*x) - 0.42
}

const upperhex = "0123456789ABCDEF"

// EncodeURIComponent percent-encodes s like the browser function of the same name.
func EncodeURIComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
