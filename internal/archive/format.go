package archive

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"github.com/minus-twelve/browserstate/types"
)

type Format string

const (
	FormatTarGz   Format = "tar.gz"
	FormatZip     Format = "zip"
	FormatUnknown Format = "unknown"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zipMagic  = []byte("PK\x03\x04")
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTarGz, FormatZip:
		return Format(s), nil
	default:
		return FormatUnknown, fmt.Errorf("%w: format must be %q or %q, got %q", types.ErrValidation, FormatTarGz, FormatZip, s)
	}
}

// Detect classifies a stored blob by its leading bytes. A zip payload may be
// wrapped in base64 as a whole.
func Detect(data []byte) Format {
	format, _ := classify(data)
	return format
}

// Decode classifies data and returns the payload ready for Unpack, with any
// base64 layer removed.
func Decode(data []byte) (Format, []byte, error) {
	format, payload := classify(data)
	if format == FormatUnknown {
		return format, nil, fmt.Errorf("%w: %d bytes with no gzip or zip signature", types.ErrFormat, len(data))
	}
	return format, payload, nil
}

func classify(data []byte) (Format, []byte) {
	if bytes.HasPrefix(data, gzipMagic) {
		return FormatTarGz, data
	}
	if decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(data))); err == nil && bytes.HasPrefix(decoded, zipMagic) {
		return FormatZip, decoded
	}
	if bytes.HasPrefix(data, zipMagic) {
		return FormatZip, data
	}
	return FormatUnknown, nil
}
