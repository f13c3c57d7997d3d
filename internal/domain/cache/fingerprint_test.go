package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"odiadev-tts-server-go/internal/domain/audio"
)

func TestComputeNormalizesWhitespace(t *testing.T) {
	a := Compute("Hello   Lagos\n", "v1", audio.FormatMP3)
	b := Compute("  Hello Lagos", "v1", audio.FormatMP3)
	assert.Equal(t, a, b)
	assert.Len(t, a.String(), 64)
	assert.Len(t, a.Short(), 12)
}

func TestComputeSeparatesInputs(t *testing.T) {
	base := Compute("hello", "v1", audio.FormatMP3)
	assert.NotEqual(t, base, Compute("Hello", "v1", audio.FormatMP3), "case matters")
	assert.NotEqual(t, base, Compute("hello", "v2", audio.FormatMP3))
	assert.NotEqual(t, base, Compute("hello", "v1", audio.FormatWAV))
	assert.NotEqual(t, Compute("ab", "c", audio.FormatMP3), Compute("a", "bc", audio.FormatMP3))
}

func TestComputeFieldBoundariesCannotBeForged(t *testing.T) {
	assert.NotEqual(t,
		Compute("a\x1fb", "c", audio.FormatMP3),
		Compute("a", "b\x1fc", audio.FormatMP3))
	assert.NotEqual(t,
		Compute("hi", "v1\x1fwav", audio.FormatMP3),
		Compute("hi", "v1", audio.Format("wav\x1fmp3")))
}
