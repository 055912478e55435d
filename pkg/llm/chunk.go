package llm

import (
	"encoding/json"
	"fmt"
)

// ErrMalformedChunk is wrapped by ExtractDelta when a payload is not valid
// JSON. A malformed payload is not immediately fatal: the stream consumer
// holds it as a pending fragment and retries after recombining it with the
// next line, because a delta string may legally contain a literal newline
// that the wire format splits across two lines.
var ErrMalformedChunk = fmt.Errorf("malformed stream chunk")

// StreamChunk is the wire shape of a single streamed completion chunk:
//
//	{"choices":[{"delta":{"content":"..."}}]}
type StreamChunk struct {
	Choices []Choice `json:"choices"`
}

// Choice is one completion choice within a chunk.
type Choice struct {
	Delta ChunkDelta `json:"delta"`
}

// ChunkDelta carries the incremental text for a choice. Content is optional;
// chunks with no content (role announcements, finish markers) are valid.
type ChunkDelta struct {
	Content string `json:"content"`
}

// ExtractDelta parses a data payload and returns the incremental text from
// the first choice. An empty string with a nil error means the chunk parsed
// cleanly but carried no text. A non-nil error wraps ErrMalformedChunk.
//
// Delta text is opaque UTF-8: no trimming or normalization is applied, so
// whitespace inside a delta survives concatenation verbatim.
func ExtractDelta(payload string) (string, error) {
	var chunk StreamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedChunk, err)
	}

	if len(chunk.Choices) == 0 {
		return "", nil
	}

	return chunk.Choices[0].Delta.Content, nil
}
