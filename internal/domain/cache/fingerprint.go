package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"odiadev-tts-server-go/internal/domain/audio"
)

// Fingerprint identifies a rendered utterance: the same normalized text,
// voice and format always produce the same fingerprint.
type Fingerprint string

// NormalizeText trims the text and collapses runs of whitespace into one
// space. Case is preserved because the engine's prosody depends on it.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Compute returns the hex SHA-256 of the normalized request inputs. voiceKey
// should be the profile's CacheKey so a changed voice never reuses audio.
// Each field is length-prefixed, so no choice of text can make two different
// inputs hash the same bytes.
func Compute(text, voiceKey string, format audio.Format) Fingerprint {
	h := sha256.New()
	var size [8]byte
	for _, field := range []string{NormalizeText(text), voiceKey, string(format)} {
		binary.BigEndian.PutUint64(size[:], uint64(len(field)))
		h.Write(size[:])
		h.Write([]byte(field))
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

func (f Fingerprint) String() string { return string(f) }

// Short is the first 12 hex digits, for logs.
func (f Fingerprint) Short() string {
	if len(f) > 12 {
		return string(f[:12])
	}
	return string(f)
}
