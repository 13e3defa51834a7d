// Package pdfa recognises PDF/A documents by their XMP identification block.
// It is a heuristic: it does not validate PDF/A structure.
package pdfa

import (
	"bytes"
	"regexp"
)

var (
	signature      = []byte("%PDF-")
	partPattern    = regexp.MustCompile(`(?i)pdfaid:part\s*>\s*[123]\s*<`)
	conformPattern = regexp.MustCompile(`(?i)pdfaid:conformance\s*>\s*[ABU]\s*<`)
)

// Check reports whether data starts with the PDF signature and declares a
// pdfaid part in {1,2,3} together with a conformance level in {A,B,U}.
func Check(data []byte) bool {
	if len(data) < len(signature) || !bytes.Equal(data[:len(signature)], signature) {
		return false
	}
	// Patterns are ASCII so matching raw bytes equals matching the latin1 text.
	return partPattern.Match(data) && conformPattern.Match(data)
}
