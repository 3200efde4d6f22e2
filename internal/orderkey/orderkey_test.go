package orderkey_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/typenote/internal/orderkey"
)

func Test_Initial_Is_Valid_Midpoint_Of_Empty_Space(t *testing.T) {
	t.Parallel()

	key := orderkey.Initial()

	require.NoError(t, orderkey.Validate(key))
	assert.Equal(t, "V", key)

	between, err := orderkey.Space{}.Between("", "")
	require.NoError(t, err)
	assert.Equal(t, key, between)
}

func Test_Between_Returns_Key_Strictly_Inside_Bounds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		lower, upper string
	}{
		{"", ""},
		{"", "V"},
		{"V", ""},
		{"A", "B"},
		{"A", "B5"},
		{"A5", "B"},
		{"V", "V05"},
		{"", "1"},
		{"", "01"},
		{"z", ""},
		{"zz", ""},
		{"0V", "1"},
		{"a1", "a2"},
	}

	space := orderkey.Space{}

	for _, tc := range cases {
		key, err := space.Between(tc.lower, tc.upper)
		require.NoError(t, err, "between %q and %q", tc.lower, tc.upper)
		require.NoError(t, orderkey.Validate(key))

		if tc.lower != "" {
			assert.Greater(t, key, tc.lower, "between %q and %q", tc.lower, tc.upper)
		}

		if tc.upper != "" {
			assert.Less(t, key, tc.upper, "between %q and %q", tc.lower, tc.upper)
		}
	}
}

// Contract: repeated insertion into one gap keeps producing ordered, unique keys.
func Test_Between_Stays_Ordered_When_Inserting_Repeatedly_Into_Same_Gap(t *testing.T) {
	t.Parallel()

	space := orderkey.Space{MaxLen: 1000}
	keys := []string{orderkey.Initial()}

	// Always insert right after the first key.
	for range 300 {
		next := ""
		if len(keys) > 1 {
			next = keys[1]
		}

		key, err := space.Between(keys[0], next)
		require.NoError(t, err)

		keys = slices.Insert(keys, 1, key)
	}

	assert.True(t, slices.IsSorted(keys))
	assert.Len(t, slices.Compact(slices.Clone(keys)), len(keys))

	// Always insert at the front.
	front := []string{orderkey.Initial()}

	for range 300 {
		key, err := space.Between("", front[0])
		require.NoError(t, err)

		front = slices.Insert(front, 0, key)
	}

	assert.True(t, slices.IsSorted(front))
}

func Test_Between_Returns_ErrExhausted_When_Key_Exceeds_MaxLen(t *testing.T) {
	t.Parallel()

	space := orderkey.Space{MaxLen: 2}

	lower := "A"
	upper := "B"

	var err error

	for range 20 {
		var key string

		key, err = space.Between(lower, upper)
		if err != nil {
			break
		}

		upper = key
	}

	require.Error(t, err)
	assert.True(t, errors.Is(err, orderkey.ErrExhausted))
}

func Test_Between_Rejects_Invalid_Input(t *testing.T) {
	t.Parallel()

	space := orderkey.Space{}

	_, err := space.Between("B", "A")
	require.ErrorIs(t, err, orderkey.ErrOutOfOrder)

	_, err = space.Between("A", "A")
	require.ErrorIs(t, err, orderkey.ErrOutOfOrder)

	_, err = space.Between("A0", "")
	require.ErrorIs(t, err, orderkey.ErrInvalidKey)

	_, err = space.Between("", "a-b")
	require.ErrorIs(t, err, orderkey.ErrInvalidKey)
}

func Test_Spread_Returns_Sorted_Unique_Valid_Keys(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 2, 10, 61, 62, 63, 500, 5000} {
		keys := orderkey.Spread(n)

		require.Len(t, keys, n)
		assert.True(t, slices.IsSorted(keys), "n=%d", n)
		assert.Len(t, slices.Compact(slices.Clone(keys)), n, "n=%d", n)

		for _, key := range keys {
			require.NoError(t, orderkey.Validate(key), "n=%d", n)
		}
	}

	assert.Nil(t, orderkey.Spread(0))
}

// Contract: respaced keys leave room for further inserts without exhausting a small MaxLen.
func Test_Spread_Leaves_Gaps_For_Further_Inserts(t *testing.T) {
	t.Parallel()

	keys := orderkey.Spread(5)
	space := orderkey.Space{MaxLen: 3}

	for i := 0; i+1 < len(keys); i++ {
		key, err := space.Between(keys[i], keys[i+1])
		require.NoError(t, err)
		assert.Greater(t, key, keys[i])
		assert.Less(t, key, keys[i+1])
	}
}
