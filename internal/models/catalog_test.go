package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		in    string
		want  string
		known bool
	}{
		{"gemini-2.5-pro", "gemini-2.5-pro", true},
		{"models/gemini-2.5-flash", "gemini-2.5-flash", true},
		{"gemini-pro", "gemini-2.5-pro", true},
		{" gemini-flash-lite ", "gemini-2.5-flash-lite", true},
		{"gemini-1.0-ultra", "gemini-1.0-ultra", false},
	}
	for _, tc := range cases {
		got, known := Resolve(tc.in)
		require.Equal(t, tc.want, got, tc.in)
		require.Equal(t, tc.known, known, tc.in)
	}
}

func TestAllReturnsCopy(t *testing.T) {
	first := All()
	first[0].ID = "mutated"
	require.NotEqual(t, "mutated", All()[0].ID)
}
