package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RoundsHalfUp(t *testing.T) {
	d, err := Parse("10.005")
	require.NoError(t, err)
	assert.Equal(t, "10.01", d.Text('f'))

	d, err = Parse(" 100 ")
	require.NoError(t, err)
	assert.Equal(t, "100.00", d.Text('f'))
}

func TestParse_Rejects(t *testing.T) {
	for _, s := range []string{"", "abc", "NaN", "Infinity", "1e20"} {
		_, err := Parse(s)
		assert.Error(t, err, s)
	}
	_, err := Parse("10000000000000000")
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestAdd(t *testing.T) {
	sum, err := Add(MustParse("100.00"), MustParse("20.00"))
	require.NoError(t, err)
	assert.Equal(t, "120.00", String(sum))
	assert.True(t, Equal(sum, MustParse("120")))
}

func TestZero(t *testing.T) {
	assert.Equal(t, "0.00", String(Zero()))
}
