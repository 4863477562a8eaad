package set

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSet_AddContainsRemove(t *testing.T) {
	s := Of(1, 2, 3)
	require.True(t, s.Contains(2))
	s.Remove(2)
	require.False(t, s.Contains(2))
	require.Equal(t, 2, s.Len())
}

func TestSet_UnionDifference(t *testing.T) {
	a := Of(1, 2, 3)
	b := Of(3, 4, 5)
	u := a.Union(b)
	require.Equal(t, 5, u.Len())

	d := a.Difference(b)
	require.Equal(t, 2, d.Len())
	require.True(t, d.Contains(1))
	require.False(t, d.Contains(3))
}

func TestSet_Clear(t *testing.T) {
	s := Of("a", "b")
	s.Clear()
	require.Equal(t, 0, s.Len())
}
