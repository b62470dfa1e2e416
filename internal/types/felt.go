// Package types defines the field element and the oracle records shared by
// the syscall bridge.
//
// Felt is the VM's native word: an element of the STARK prime field
// p = 2^251 + 17*2^192 + 1. Addresses-as-values, counts, selectors and every
// syscall payload field are Felts.
package types

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"
)

// Size constants.
const (
	FeltSize = 32

	// MaxShortStringLen is the longest ASCII string that fits in one felt.
	MaxShortStringLen = 31
)

var (
	// ErrInvalidFelt is returned when a textual felt cannot be parsed.
	ErrInvalidFelt = errors.New("invalid felt")

	// ErrFeltOutOfRange is returned when a felt does not fit the requested
	// machine integer, or a parsed value is not below the field modulus.
	ErrFeltOutOfRange = errors.New("felt out of range")

	// ErrInvalidShortString is returned for non-ASCII or over-long short strings.
	ErrInvalidShortString = errors.New("invalid short string")
)

// mask250 keeps the low 250 bits of a keccak digest.
var mask250 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))

// Felt is a STARK field element. The zero value is 0.
//
// Felt is comparable and may be used as a map key: the underlying element is
// kept in canonical Montgomery form.
type Felt struct {
	e fp.Element
}

// FeltFromUint64 returns the felt for v.
func FeltFromUint64(v uint64) Felt {
	var f Felt
	f.e.SetUint64(v)
	return f
}

// FeltFromBigInt returns b reduced modulo p.
func FeltFromBigInt(b *big.Int) Felt {
	var f Felt
	f.e.SetBigInt(b)
	return f
}

// FeltFromHex parses a hex string with or without the 0x prefix. The value
// must be below the field modulus.
func FeltFromHex(s string) (Felt, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if digits == "" {
		return Felt{}, fmt.Errorf("%w: empty hex string", ErrInvalidFelt)
	}
	b, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return Felt{}, fmt.Errorf("%w: %q", ErrInvalidFelt, s)
	}
	return feltFromCanonical(b, s)
}

// FeltFromDecimal parses a base-10 string.
func FeltFromDecimal(s string) (Felt, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Felt{}, fmt.Errorf("%w: %q", ErrInvalidFelt, s)
	}
	return feltFromCanonical(b, s)
}

// ParseFelt accepts either a 0x-prefixed hex string or a decimal string.
func ParseFelt(s string) (Felt, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return FeltFromHex(s)
	}
	return FeltFromDecimal(s)
}

// MustFeltFromHex is like FeltFromHex but panics on error. Use only for
// constants.
func MustFeltFromHex(s string) Felt {
	f, err := FeltFromHex(s)
	if err != nil {
		panic(err)
	}
	return f
}

// FeltFromBytes interprets b as a big-endian integer of at most 32 bytes.
func FeltFromBytes(b []byte) (Felt, error) {
	if len(b) > FeltSize {
		return Felt{}, fmt.Errorf("%w: %d bytes", ErrFeltOutOfRange, len(b))
	}
	return feltFromCanonical(new(big.Int).SetBytes(b), fmt.Sprintf("%x", b))
}

// FeltFromBase58 decodes a base58 string into a felt.
func FeltFromBase58(s string) (Felt, error) {
	data, err := base58.Decode(s)
	if err != nil {
		return Felt{}, fmt.Errorf("base58 decode: %w", err)
	}
	return FeltFromBytes(data)
}

func feltFromCanonical(b *big.Int, src string) (Felt, error) {
	if b.Sign() < 0 || b.Cmp(fp.Modulus()) >= 0 {
		return Felt{}, fmt.Errorf("%w: %s", ErrFeltOutOfRange, src)
	}
	return FeltFromBigInt(b), nil
}

// Equal reports whether f and o are the same element.
func (f Felt) Equal(o Felt) bool {
	return f.e.Equal(&o.e)
}

// Cmp compares the canonical integer values of f and o.
func (f Felt) Cmp(o Felt) int {
	return f.e.Cmp(&o.e)
}

// IsZero reports whether f is 0.
func (f Felt) IsZero() bool {
	return f.e.IsZero()
}

// BigInt returns the canonical integer value of f.
func (f Felt) BigInt() *big.Int {
	return f.e.BigInt(new(big.Int))
}

// Uint64 converts f to a uint64, failing if it does not fit.
func (f Felt) Uint64() (uint64, error) {
	if !f.e.IsUint64() {
		return 0, fmt.Errorf("%w: %s does not fit in 64 bits", ErrFeltOutOfRange, f)
	}
	return f.e.Uint64(), nil
}

// Add returns f + o mod p.
func (f Felt) Add(o Felt) Felt {
	var r Felt
	r.e.Add(&f.e, &o.e)
	return r
}

// Sub returns f - o mod p.
func (f Felt) Sub(o Felt) Felt {
	var r Felt
	r.e.Sub(&f.e, &o.e)
	return r
}

// Bytes returns the 32-byte big-endian encoding of f.
func (f Felt) Bytes() [FeltSize]byte {
	var out [FeltSize]byte
	f.BigInt().FillBytes(out[:])
	return out
}

// String returns the decimal representation.
func (f Felt) String() string {
	return f.BigInt().String()
}

// Hex returns the 0x-prefixed lowercase hex representation.
func (f Felt) Hex() string {
	return "0x" + f.BigInt().Text(16)
}

// Base58 returns the base58 encoding of the 32-byte big-endian form.
func (f Felt) Base58() string {
	b := f.Bytes()
	return base58.Encode(b[:])
}

// MarshalText implements encoding.TextMarshaler using hex.
func (f Felt) MarshalText() ([]byte, error) {
	return []byte(f.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Hex and decimal are
// both accepted.
func (f *Felt) UnmarshalText(text []byte) error {
	parsed, err := ParseFelt(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ShortString encodes an ASCII string of at most 31 characters as a felt,
// big-endian, the way Cairo short-string literals are encoded.
func ShortString(s string) (Felt, error) {
	if len(s) > MaxShortStringLen {
		return Felt{}, fmt.Errorf("%w: %q is longer than %d", ErrInvalidShortString, s, MaxShortStringLen)
	}
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return Felt{}, fmt.Errorf("%w: %q is not ASCII", ErrInvalidShortString, s)
		}
	}
	return FeltFromBigInt(new(big.Int).SetBytes([]byte(s))), nil
}

// MustShortString is like ShortString but panics on error.
func MustShortString(s string) Felt {
	f, err := ShortString(s)
	if err != nil {
		panic(err)
	}
	return f
}

// DecodeShortString returns the ASCII text encoded in f, if every byte is
// printable.
func (f Felt) DecodeShortString() (string, bool) {
	raw := f.BigInt().Bytes()
	for _, c := range raw {
		if c < 0x20 || c >= 0x7f {
			return "", false
		}
	}
	return string(raw), true
}

// StarknetKeccak returns keccak256(data) truncated to 250 bits, the hash
// used for entry-point selectors.
func StarknetKeccak(data []byte) Felt {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	digest := new(big.Int).SetBytes(h.Sum(nil))
	return FeltFromBigInt(digest.And(digest, mask250))
}

// EntryPointSelector returns the selector of the named entry point.
func EntryPointSelector(name string) Felt {
	return StarknetKeccak([]byte(name))
}
