package ds

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetAddAndContains(t *testing.T) {
	s := NewSet[string]()

	require.True(t, s.Add("a"))
	require.True(t, s.Add("b"))
	require.False(t, s.Add("a"))

	require.True(t, s.Contains("a"))
	require.False(t, s.Contains("c"))
	require.Equal(t, 2, s.Len())
}

func TestSetValuesKeepInsertionOrder(t *testing.T) {
	s := NewSet("c", "a", "b", "a")
	require.Equal(t, []string{"c", "a", "b"}, s.Values())

	// The returned slice is detached from the set.
	v := s.Values()
	v[0] = "x"
	require.Equal(t, []string{"c", "a", "b"}, s.Values())
}
