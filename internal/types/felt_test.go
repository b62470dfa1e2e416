package types

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeltUint64(t *testing.T) {
	f := FeltFromUint64(42)
	v, err := f.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)
	assert.Equal(t, "42", f.String())
	assert.Equal(t, "0x2a", f.Hex())

	// p - 1 does not fit.
	minusOne := FeltFromUint64(0).Sub(FeltFromUint64(1))
	_, err = minusOne.Uint64()
	assert.True(t, errors.Is(err, ErrFeltOutOfRange))
}

func TestFeltParse(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"0x2a", 42, false},
		{"0X2A", 42, false},
		{"42", 42, false},
		{"0x", 0, true},
		{"zz", 0, true},
		// The modulus itself is rejected.
		{"0x800000000000011000000000000000000000000000000000000000000000001", 0, true},
	}

	for _, tt := range tests {
		f, err := ParseFelt(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, FeltFromUint64(tt.want), f, tt.in)
	}
}

func TestFeltIsComparable(t *testing.T) {
	m := map[Felt]string{FeltFromUint64(7): "seven"}
	assert.Equal(t, "seven", m[FeltFromBigInt(big.NewInt(7))])
	assert.True(t, FeltFromUint64(7).Equal(FeltFromUint64(7)))
}

func TestFeltBase58RoundTrip(t *testing.T) {
	f := MustFeltFromHex("0x1234abcd")
	parsed, err := FeltFromBase58(f.Base58())
	require.NoError(t, err)
	assert.Equal(t, f, parsed)
}

func TestFeltJSON(t *testing.T) {
	type wrapper struct {
		Value Felt `json:"value"`
	}
	data, err := json.Marshal(wrapper{Value: FeltFromUint64(255)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"0xff"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"value":"255"}`), &w))
	assert.Equal(t, FeltFromUint64(255), w.Value)
}

func TestShortString(t *testing.T) {
	f, err := ShortString("CallContract")
	require.NoError(t, err)
	assert.Equal(t, "0x43616c6c436f6e7472616374", f.Hex())

	s, ok := f.DecodeShortString()
	require.True(t, ok)
	assert.Equal(t, "CallContract", s)

	_, err = ShortString("this string is definitely longer than 31 chars")
	assert.ErrorIs(t, err, ErrInvalidShortString)
}

func TestEntryPointSelector(t *testing.T) {
	// Well-known selector of "transfer".
	want := MustFeltFromHex("0x83afd3f4caedc6eebf44246fe54e38c95e3179a5ec9ea81740eca5b482d12e")
	assert.Equal(t, want, EntryPointSelector("transfer"))
}

func TestSelectorLookup(t *testing.T) {
	sel, ok := SelectorByConstant("STORAGE_READ_SELECTOR")
	require.True(t, ok)
	assert.Equal(t, StorageReadSelector, sel)

	name, ok := SelectorName(sel)
	require.True(t, ok)
	assert.Equal(t, "StorageRead", name)

	_, ok = SelectorName(FeltFromUint64(1))
	assert.False(t, ok)
}
