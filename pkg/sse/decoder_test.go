package sse_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marketstead/chatstream/pkg/sse"
)

// collectPayloads runs a full decode/classify pass over the given chunk
// splits and returns every data payload in order.
func collectPayloads(chunks [][]byte) []string {
	var dec sse.Decoder
	carry := ""
	var payloads []string

	for _, chunk := range chunks {
		var lines []string
		lines, carry = dec.Decode(chunk, carry)
		for _, raw := range lines {
			line := sse.Classify(raw)
			if line.Kind == sse.LineData {
				payloads = append(payloads, line.Payload)
			}
		}
	}

	return payloads
}

// splitEvery partitions a byte stream into chunks of at most n bytes.
func splitEvery(stream []byte, n int) [][]byte {
	var chunks [][]byte
	for len(stream) > 0 {
		end := min(n, len(stream))
		chunks = append(chunks, stream[:end])
		stream = stream[end:]
	}
	return chunks
}

var _ = Describe("SplitLines", func() {
	It("returns complete lines and carries the trailing partial", func() {
		lines, carry := sse.SplitLines("one\ntwo\nthr", "")
		Expect(lines).To(Equal([]string{"one", "two"}))
		Expect(carry).To(Equal("thr"))
	})

	It("prepends the carry to the incoming text", func() {
		lines, carry := sse.SplitLines("ee\nfour\n", "thr")
		Expect(lines).To(Equal([]string{"three", "four"}))
		Expect(carry).To(BeEmpty())
	})

	It("strips a single trailing CR from each line", func() {
		lines, _ := sse.SplitLines("a\r\nb\r\n", "")
		Expect(lines).To(Equal([]string{"a", "b"}))
	})

	It("preserves embedded CR characters", func() {
		lines, _ := sse.SplitLines("a\rb\n", "")
		Expect(lines).To(Equal([]string{"a\rb"}))
	})

	It("produces no lines for text without a newline", func() {
		lines, carry := sse.SplitLines("partial", "")
		Expect(lines).To(BeEmpty())
		Expect(carry).To(Equal("partial"))
	})
})

var _ = Describe("Decoder", func() {
	It("decodes a multi-byte rune split across chunks", func() {
		var dec sse.Decoder
		full := []byte("data: héllo\n") // é is two bytes in UTF-8

		split := 8 // lands inside the é
		lines1, carry := dec.Decode(full[:split], "")
		Expect(lines1).To(BeEmpty())

		lines2, carry := dec.Decode(full[split:], carry)
		Expect(carry).To(BeEmpty())
		Expect(lines2).To(Equal([]string{"data: héllo"}))
	})

	It("holds a four-byte rune across three chunks", func() {
		var dec sse.Decoder
		full := []byte("𝄞ok\n") // U+1D11E, four bytes

		carry := ""
		var all []string
		for _, chunk := range [][]byte{full[:1], full[1:3], full[3:]} {
			var lines []string
			lines, carry = dec.Decode(chunk, carry)
			all = append(all, lines...)
		}

		Expect(all).To(Equal([]string{"𝄞ok"}))
		Expect(carry).To(BeEmpty())
	})

	It("extracts identical payloads for every chunk partition", func() {
		stream := []byte(": keepalive\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"Héllo\"}}]}\n" +
			"\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\" wörld\"}}]}\n" +
			"\n" +
			"data: [DONE]\n")

		want := collectPayloads([][]byte{stream})
		Expect(want).To(HaveLen(2))

		for n := 1; n <= len(stream); n++ {
			got := collectPayloads(splitEvery(stream, n))
			Expect(got).To(Equal(want), "chunk size %d", n)
		}
	})
})
