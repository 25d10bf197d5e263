package stream

import (
	"bytes"
	"strings"
)

// LineFramer turns an arbitrary sequence of byte chunks into complete text
// lines, keeping the trailing partial line buffered across chunks. Buffering
// happens at the byte level, so multi-byte UTF-8 sequences split across chunk
// boundaries reassemble before a line is ever yielded.
//
// LineFramer is purely transformational and has no error conditions.
type LineFramer struct {
	pending []byte
}

// Push appends chunk to the pending buffer and returns all complete lines in
// order. Lines are trimmed of surrounding whitespace; lines that are empty
// after trimming (keep-alive padding) are dropped. The final fragment after
// the last line break stays buffered for the next Push or Flush.
func (f *LineFramer) Push(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}

	f.pending = append(f.pending, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(f.pending, '\n')
		if i < 0 {
			break
		}

		line := strings.TrimSpace(string(f.pending[:i]))
		f.pending = f.pending[i+1:]
		if line != "" {
			lines = append(lines, line)
		}
	}

	return lines
}

// Flush yields the buffered partial line at end-of-stream, if any. The buffer
// is consumed, so flushing twice with no intervening Push yields nothing the
// second time.
func (f *LineFramer) Flush() (string, bool) {
	if len(f.pending) == 0 {
		return "", false
	}

	line := strings.TrimSpace(string(f.pending))
	f.pending = nil
	if line == "" {
		return "", false
	}

	return line, true
}
