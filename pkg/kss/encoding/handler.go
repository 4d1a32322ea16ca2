// Package encoding detects character encodings, converts source content to
// UTF-8, and sniffs binary files.
package encoding

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

const (
	// sniffLen is the number of bytes fed to http.DetectContentType.
	sniffLen = 512
	// checkLen is the window inspected by the null byte check.
	checkLen = 1024
	// nullThreshold is the null byte ratio above which content counts as
	// binary.
	nullThreshold = 0.15
)

// knownTextMIMETypes lists text-based MIME types beyond the text/ prefix.
var knownTextMIMETypes = map[string]bool{
	"application/json":       true,
	"application/xml":        true,
	"application/javascript": true,
	"application/ecmascript": true,
	"application/yaml":       true,
	"application/toml":       true,
	"application/csv":        true,
	"application/sql":        true,
	"image/svg+xml":          true,
}

// knownTextMIMESuffixes lists structured-syntax suffixes that imply text.
var knownTextMIMESuffixes = map[string]bool{
	"+xml":  true,
	"+json": true,
}

// EncodingHandler defines the interface for detecting character encoding,
// converting content to UTF-8, and detecting binary files.
type EncodingHandler interface {
	// DetectAndDecode attempts to detect the encoding of the input content
	// and convert it to UTF-8. It returns the UTF-8 bytes, the detected
	// encoding name (IANA name), whether detection was certain, and any
	// conversion error. The configured fallback encoding is used when
	// detection is uncertain.
	DetectAndDecode(content []byte) (utf8Content []byte, detectedEncoding string, certainty bool, err error)

	// IsBinary reports whether the content is likely binary data, based on
	// MIME type sniffing of the first 512 bytes and the null byte ratio of
	// the first 1024 bytes.
	IsBinary(content []byte) bool
}

// goCharsetEncodingHandler implements EncodingHandler on top of
// golang.org/x/net/html/charset and golang.org/x/text/transform.
type goCharsetEncodingHandler struct {
	defaultEncoding string
}

// NewGoCharsetEncodingHandler creates an encoding handler. defaultEncoding
// names the charset assumed when detection is uncertain; empty means utf-8,
// since stylesheet sources without a BOM are overwhelmingly UTF-8 and the
// detector alone would guess windows-1252 for them.
func NewGoCharsetEncodingHandler(defaultEncoding string) EncodingHandler {
	if defaultEncoding == "" {
		defaultEncoding = "utf-8"
	}
	return &goCharsetEncodingHandler{defaultEncoding: defaultEncoding}
}

// DetectAndDecode implements the EncodingHandler interface.
func (h *goCharsetEncodingHandler) DetectAndDecode(content []byte) ([]byte, string, bool, error) {
	enc, name, certain := charset.DetermineEncoding(content, "")

	if !certain && h.defaultEncoding != "" {
		if fallback, fallbackName := charset.Lookup(h.defaultEncoding); fallback != nil {
			enc = fallback
			name = fallbackName
			certain = true
		}
	}

	if enc == nil {
		if name == "" {
			name = "utf-8"
		}
		return content, name, certain, nil
	}

	reader := transform.NewReader(bytes.NewReader(content), enc.NewDecoder())
	utf8Content, err := io.ReadAll(reader)
	if err != nil {
		if name == "" {
			name = "unknown"
		}
		return content, name, certain, fmt.Errorf("failed to convert from %q: %w", name, err)
	}

	// Decoders configured by the html index keep the byte order mark as a
	// literal U+FEFF, which would land in front of the first comment line.
	utf8Content = bytes.TrimPrefix(utf8Content, []byte("\ufeff"))

	if name == "" {
		name = "unknown"
	}
	return utf8Content, name, certain, nil
}

// IsBinary implements the EncodingHandler interface. A conclusive text MIME
// type is trusted as-is. UTF-16 content would otherwise fail the null byte
// ratio on its interleaved zero bytes and never reach the decoder.
func (h *goCharsetEncodingHandler) IsBinary(content []byte) bool {
	if len(content) == 0 {
		return false
	}

	sniff := content
	if len(sniff) > sniffLen {
		sniff = sniff[:sniffLen]
	}
	mimeType := strings.TrimSpace(strings.SplitN(http.DetectContentType(sniff), ";", 2)[0])
	if mimeType != "application/octet-stream" {
		return !isMIMETextBased(mimeType)
	}

	// octet-stream is the sniffer shrugging; the null byte ratio decides.
	window := content
	if len(window) > checkLen {
		window = window[:checkLen]
	}
	nullCount := bytes.Count(window, []byte{0x00})
	return float64(nullCount)/float64(len(window)) > nullThreshold
}

// isMIMETextBased reports whether a sniffed MIME type is likely text.
func isMIMETextBased(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	if knownTextMIMETypes[mimeType] {
		return true
	}
	for suffix := range knownTextMIMESuffixes {
		if strings.HasSuffix(mimeType, suffix) {
			return true
		}
	}
	return false
}
