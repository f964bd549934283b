package utilities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMobile(t *testing.T) {
	cases := map[string]string{
		"+91 98765-43210": "919876543210",
		"(555) 010 2000":  "5550102000",
		"":                "",
		"abc":             "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeMobile(in), in)
	}
}

func TestMobileSuffix(t *testing.T) {
	assert.Equal(t, "9876543210", MobileSuffix("919876543210", 10))
	assert.Equal(t, "12345", MobileSuffix("12345", 10))
}

func TestIDGeneratorUnique(t *testing.T) {
	g := NewIDGenerator(3)
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := g.NewID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestIDGeneratorFallsBackToKSUID(t *testing.T) {
	// snowflake node ids are limited to 10 bits
	g := NewIDGenerator(1 << 20)
	assert.Len(t, g.NewID(), 27)
}

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, "warn", levelFromString("warning").String())
	assert.Equal(t, "info", levelFromString("bogus").String())
}
