// Package sse provides a minimal, purpose-built consumer for the SSE-style
// chat completion stream: a chunk-to-line frame decoder and a line
// classifier. It intentionally does NOT provide SSE writer or server
// capabilities, and it is not a general SSE library — it understands
// exactly the wire convention the chat upstream emits.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import (
	"strings"
	"unicode/utf8"
)

// Decoder turns raw byte chunks into newline-delimited protocol lines.
//
// The decoder holds partial multi-byte UTF-8 state internally, because a
// rune may straddle a chunk boundary. Line state is NOT held internally:
// the trailing unterminated line is threaded explicitly through the carry
// argument so the reassembly logic stays a pure transform over
// (chunk, carry).
type Decoder struct {
	// partial holds the trailing bytes of an incomplete UTF-8 sequence
	// from the previous chunk.
	partial []byte
}

// Decode converts a raw chunk plus the carry from the previous pass into
// complete lines and a new carry. The carry is the trailing segment with no
// terminating newline; it never contains a complete line.
func (d *Decoder) Decode(chunk []byte, carry string) (lines []string, newCarry string) {
	buf := chunk
	if len(d.partial) > 0 {
		buf = append(d.partial, chunk...)
		d.partial = nil
	}

	cut := len(buf)
	// Walk back at most one rune's worth of bytes looking for the start of
	// a trailing incomplete sequence.
	for i := len(buf) - 1; i >= 0 && len(buf)-i <= utf8.UTFMax; i-- {
		if !utf8.RuneStart(buf[i]) {
			continue
		}
		if !utf8.FullRune(buf[i:]) {
			cut = i
		}
		break
	}

	if cut < len(buf) {
		d.partial = append([]byte(nil), buf[cut:]...)
	}

	return SplitLines(string(buf[:cut]), carry)
}

// SplitLines is the pure line-reassembly transform: concatenate carry and
// text, split on "\n", and return all complete lines plus the trailing
// partial segment as the new carry. A single trailing "\r" is stripped from
// each complete line; embedded "\r" elsewhere is preserved, matching the
// wire convention of CRLF handling in trailing position only.
func SplitLines(text, carry string) (lines []string, newCarry string) {
	parts := strings.Split(carry+text, "\n")
	newCarry = parts[len(parts)-1]

	lines = parts[:len(parts)-1]
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}

	return lines, newCarry
}
