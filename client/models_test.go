package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidNIT(t *testing.T) {
	tests := []struct {
		nit  string
		want bool
	}{
		{"12345-6", true},
		{"110339-K", true},
		{"110339-k", true},
		{"1-0", true},
		{"12345-66", false},
		{"-6", false},
		{"12345", false},
		{"ABC-1", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.nit, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidNIT(tt.nit))
		})
	}
}

func TestNormalizeNIT(t *testing.T) {
	assert.Equal(t, "110339-K", NormalizeNIT(" 110339-k "))
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus("Vigente")
	assert.True(t, ok)
	assert.Equal(t, StatusActive, s)

	s, ok = ParseStatus("CANCELADA")
	assert.True(t, ok)
	assert.Equal(t, StatusCancelled, s)

	_, ok = ParseStatus("paused")
	assert.False(t, ok)
}

func TestFindInstance(t *testing.T) {
	c := &Client{Instances: []Instance{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}}
	assert.Equal(t, "b", c.FindInstance(2).Name)
	assert.Nil(t, c.FindInstance(3))
}
