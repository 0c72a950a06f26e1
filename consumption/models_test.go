package consumption

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDay(t *testing.T) {
	c := &Consumption{DateTime: "15/03/2024 10:30"}
	day, err := c.Day()
	require.NoError(t, err)
	assert.Equal(t, 15, day.Day())
	assert.Equal(t, 0, day.Hour())

	bad := &Consumption{DateTime: "yesterday"}
	_, err = bad.Day()
	assert.Error(t, err)
}
