package sse

import "strings"

// dataPrefix marks a line carrying a JSON payload.
const dataPrefix = "data: "

// doneSentinel is the literal payload that terminates a stream.
const doneSentinel = "[DONE]"

// LineKind classifies a protocol line.
type LineKind int

const (
	// LineBlank is an empty or whitespace-only line, the event separator
	// convention. Ignored.
	LineBlank LineKind = iota

	// LineComment starts with ":", the heartbeat/keepalive convention.
	// Ignored.
	LineComment

	// LineData carries a JSON payload after the "data: " prefix.
	LineData

	// LineTerminator is a data line whose payload is the "[DONE]" sentinel.
	// It ends the stream successfully regardless of any remaining buffered
	// lines.
	LineTerminator

	// LineUnrecognized is any other non-empty line. Ignored for forward
	// compatibility with protocol extensions.
	LineUnrecognized
)

// Line is a classified protocol line.
type Line struct {
	Kind LineKind

	// Payload is the whitespace-trimmed remainder after "data: ", set only
	// for LineData.
	Payload string

	// Raw is the line exactly as it appeared on the wire. The stream
	// consumer needs it when a payload fails to parse and must be
	// recombined with subsequent lines.
	Raw string
}

// Classify assigns a kind to a single decoded line.
func Classify(raw string) Line {
	if strings.TrimSpace(raw) == "" {
		return Line{Kind: LineBlank, Raw: raw}
	}

	if strings.HasPrefix(raw, ":") {
		return Line{Kind: LineComment, Raw: raw}
	}

	if strings.HasPrefix(raw, dataPrefix) {
		payload := strings.TrimSpace(raw[len(dataPrefix):])
		if payload == doneSentinel {
			return Line{Kind: LineTerminator, Raw: raw}
		}
		return Line{Kind: LineData, Payload: payload, Raw: raw}
	}

	return Line{Kind: LineUnrecognized, Raw: raw}
}
