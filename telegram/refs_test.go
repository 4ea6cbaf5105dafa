package telegram

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeRef(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"@TechNews", "technews"},
		{"technews", "technews"},
		{" @TechNews ", "technews"},
		{"-1001234567890", "1234567890"},
		{"1234567890", "1234567890"},
		{"-100abc", "-100abc"},
		{"", ""},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, NormalizeRef(tc.in), "input %q", tc.in)
	}
}

func TestNormalizeRefEquivalentSpellings(t *testing.T) {
	// All spellings of the same channel must collapse to one value.
	require.Equal(t, NormalizeRef("@News"), NormalizeRef("news"))
	require.Equal(t, NormalizeRef("-1009876543210"), NormalizeRef("9876543210"))
}

func TestRefCandidates(t *testing.T) {
	got := RefCandidates(1234567890, "TechNews")
	require.Equal(t, []string{"technews", "1234567890"}, got)

	got = RefCandidates(1234567890, "")
	require.Equal(t, []string{"1234567890"}, got)

	require.Empty(t, RefCandidates(0, ""))
}

func TestIsNumericRef(t *testing.T) {
	require.True(t, IsNumericRef("1234567890"))
	require.True(t, IsNumericRef("-1001234567890"))
	require.False(t, IsNumericRef("technews"))
	require.False(t, IsNumericRef("@technews"))
	require.False(t, IsNumericRef(""))
}
