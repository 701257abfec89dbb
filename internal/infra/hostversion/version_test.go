package hostversion

import (
	"testing"

	"github.com/stretchr/testify/require"

	"editormcp/internal/domain"
)

func TestCompareStrings(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"2022.3.20f1", "2022.3.0f1", 1},
		{"2022.3.0f1", "2022.3.0f1", 0},
		{"2021.3.45f1", "2022.3.0f1", -1},
		{"2023.1.0b4", "2023.1.0f1", -1},
		{"2023.1.0a9", "2023.1.0b1", -1},
		{"2022.3.10f2", "2022.3.10f1", 1},
		{"6000.0.23f1", "2022.3.0f1", 1},
		{"2022.3", "2022.3.0", 0},
	}
	for _, tc := range cases {
		got, err := CompareStrings(tc.a, tc.b)
		require.NoError(t, err, tc.a)
		require.Equal(t, tc.want, got, "%s vs %s", tc.a, tc.b)
	}
}

func TestIsCompatible(t *testing.T) {
	require.True(t, IsCompatible("2022.3.20f1"))
	require.True(t, IsCompatible(domain.MinHostVersion))
	require.False(t, IsCompatible("2021.3.1f1"))
	require.False(t, IsCompatible("not-a-version"))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("2023.2.1f1"))
	err := Validate("2020.1.0f1")
	require.ErrorIs(t, err, domain.ErrHostIncompatible)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeFailedPrecond, code)
}
