package amount_test

import (
	"testing"

	"github.com/meridianlabs-xyz/route-hub/amount"
	"github.com/zeebo/assert"
)

func TestToBaseUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals int
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"1.5", 6, "1500000"},
		{"0.000001", 6, "1"},
		{"0", 6, "0"},
		{"0.0", 6, "0"},
		{"123.456", 6, "123456000"},
		{"1.500000", 6, "1500000"},
		// trailing zeros beyond precision are tolerated
		{"1.1000000000", 6, "1100000"},
		{"7", 0, "7"},
	}

	for _, c := range cases {
		got, err := amount.ToBaseUnits(c.in, c.decimals)
		assert.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestToBaseUnitsRejects(t *testing.T) {
	_, err := amount.ToBaseUnits("1.2345678", 6)
	assert.Error(t, err)

	_, err = amount.ToBaseUnits("-1", 6)
	assert.Error(t, err)

	_, err = amount.ToBaseUnits("1,5", 6)
	assert.Error(t, err)

	_, err = amount.ToBaseUnits("abc", 6)
	assert.Error(t, err)
}

func TestFromBaseUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals int
		want     string
	}{
		{"1000000000000000000", 18, "1"},
		{"1500000", 6, "1.5"},
		{"1", 6, "0.000001"},
		{"0", 6, "0"},
		{"123456000", 6, "123.456"},
		{"7", 0, "7"},
	}

	for _, c := range cases {
		got, err := amount.FromBaseUnits(c.in, c.decimals)
		assert.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

// Round trip: base -> human -> base must be the identity for any base-unit
// string, including ones whose human form drops trailing zeros.
func TestRoundTrip(t *testing.T) {
	bases := []string{"1", "10", "1000000", "1500000", "999999999999999999", "120000"}
	for _, b := range bases {
		human, err := amount.FromBaseUnits(b, 6)
		assert.NoError(t, err)
		back, err := amount.ToBaseUnits(human, 6)
		assert.NoError(t, err)
		assert.Equal(t, b, back)
	}
}

func TestApplySlippageBps(t *testing.T) {
	got, err := amount.ApplySlippageBps("1000000", 100) // 1%
	assert.NoError(t, err)
	assert.Equal(t, "990000", got)

	got, err = amount.ApplySlippageBps("1000000", 0)
	assert.NoError(t, err)
	assert.Equal(t, "1000000", got)

	_, err = amount.ApplySlippageBps("1000000", 10001)
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "1.5", amount.Normalize("01.50"))
	assert.Equal(t, "0", amount.Normalize("0.000"))
	assert.Equal(t, "12", amount.Normalize("12.000"))
	assert.Equal(t, "0.5", amount.Normalize("0.5"))
}
