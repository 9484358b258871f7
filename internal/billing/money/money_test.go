package money

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Cents
	}{
		{"0", 0},
		{"1800.00", 180000},
		{"350.00", 35000},
		{"2472.50", 247250},
		{"0.05", 5},
		{"12.5", 1250},
		{"-3.25", -325},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseRejectsTooManyFractionalDigits(t *testing.T) {
	_, err := Parse("1.005")
	require.Error(t, err)
}

func TestApplyPercentRoundsHalfUpAfterMultiplication(t *testing.T) {
	// 1800.00 + 350.00 with 15% markup = 2472.50 exactly.
	base := FromParts(2150, 0)
	require.Equal(t, Cents(247250), base.ApplyPercent(1500))

	// 0.01 with 50% markup rounds 0.015 up to 0.02.
	require.Equal(t, Cents(2), Cents(1).ApplyPercent(5000))

	// Zero markup is identity.
	require.Equal(t, base, base.ApplyPercent(0))
}

func TestPercentOf(t *testing.T) {
	require.Equal(t, Cents(32250), FromParts(2150, 0).PercentOf(1500))
	require.Equal(t, Cents(1), Cents(1).PercentOf(5000)) // 0.005 rounds up
}

func TestRepeatedAdditionIsExact(t *testing.T) {
	var sum Cents
	for i := 0; i < 1000; i++ {
		sum += Cents(10) // ten cents
	}
	require.Equal(t, Cents(10000), sum)
	require.Equal(t, "100.00", sum.String())
}

func TestString(t *testing.T) {
	require.Equal(t, "2472.50", Cents(247250).String())
	require.Equal(t, "0.05", Cents(5).String())
	require.Equal(t, "-3.25", Cents(-325).String())
}

func TestDisplayUsesThousandsSeparators(t *testing.T) {
	require.Equal(t, "12,472.50", Cents(1247250).Display())
}

func TestFromFloat(t *testing.T) {
	require.Equal(t, Cents(247250), FromFloat(2472.50))
	require.Equal(t, Cents(1), FromFloat(0.005))
	require.Equal(t, Cents(-325), FromFloat(-3.25))
}
