// Package audio holds the output formats the gateway can deliver and the
// container conversion between them.
package audio

import (
	"fmt"
	"strings"
)

// Format is an output container.
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
)

// ParseFormat accepts wav or mp3 in any case. An empty value yields fallback.
func ParseFormat(value string, fallback Format) (Format, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback, nil
	}
	switch Format(value) {
	case FormatWAV, FormatMP3:
		return Format(value), nil
	default:
		return "", fmt.Errorf("unsupported audio format %q (use wav or mp3)", value)
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatMP3 {
		return "audio/mpeg"
	}
	return "audio/wav"
}

// Extension returns the file extension without a dot.
func (f Format) Extension() string {
	return string(f)
}

// Sniff guesses the container of raw bytes from its magic header.
func Sniff(data []byte) (Format, bool) {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV, true
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3, true
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3, true
	default:
		return "", false
	}
}
