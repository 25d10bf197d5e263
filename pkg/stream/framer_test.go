package stream

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LineFramer", func() {
	var framer *LineFramer

	BeforeEach(func() {
		framer = &LineFramer{}
	})

	// pushAll feeds the input split at the given boundaries and collects
	// every yielded line including the flush.
	pushAll := func(input string, boundaries ...int) []string {
		var lines []string
		prev := 0
		for _, b := range boundaries {
			lines = append(lines, framer.Push([]byte(input[prev:b]))...)
			prev = b
		}
		lines = append(lines, framer.Push([]byte(input[prev:]))...)
		if line, ok := framer.Flush(); ok {
			lines = append(lines, line)
		}
		return lines
	}

	It("yields one line per line break for a single chunk", func() {
		lines := framer.Push([]byte("first\nsecond\nthird\n"))
		Expect(lines).To(Equal([]string{"first", "second", "third"}))
	})

	It("yields the same lines regardless of chunk boundaries", func() {
		input := "alpha\nbeta\ngamma\n"
		expected := []string{"alpha", "beta", "gamma"}

		for boundary := 1; boundary < len(input); boundary++ {
			framer = &LineFramer{}
			Expect(pushAll(input, boundary)).To(Equal(expected),
				"split at byte %d", boundary)
		}
	})

	It("holds a partial line across chunks", func() {
		Expect(framer.Push([]byte("hel"))).To(BeEmpty())
		Expect(framer.Push([]byte("lo\nwor"))).To(Equal([]string{"hello"}))
		Expect(framer.Push([]byte("ld\n"))).To(Equal([]string{"world"}))
	})

	It("reassembles a multi-byte rune split across chunks", func() {
		input := []byte("héllo\n")
		// Split inside the two-byte é sequence.
		Expect(framer.Push(input[:2])).To(BeEmpty())
		lines := framer.Push(input[2:])
		Expect(lines).To(Equal([]string{"héllo"}))
	})

	It("handles a chunk boundary between \\r and \\n", func() {
		Expect(framer.Push([]byte("hello\r"))).To(BeEmpty())
		Expect(framer.Push([]byte("\nworld\r\n"))).To(Equal([]string{"hello", "world"}))
	})

	It("drops lines that are empty after trimming", func() {
		lines := framer.Push([]byte("first\n\n   \n\t\nsecond\n"))
		Expect(lines).To(Equal([]string{"first", "second"}))
	})

	It("flushes the trailing fragment at end-of-stream", func() {
		Expect(framer.Push([]byte("complete\ntrailing"))).To(Equal([]string{"complete"}))

		line, ok := framer.Flush()
		Expect(ok).To(BeTrue())
		Expect(line).To(Equal("trailing"))
	})

	It("does not yield a duplicate line on a second flush", func() {
		framer.Push([]byte("trailing"))

		_, ok := framer.Flush()
		Expect(ok).To(BeTrue())

		_, ok = framer.Flush()
		Expect(ok).To(BeFalse())
	})

	It("flushes nothing when the buffer is blank", func() {
		framer.Push([]byte("line\n   "))

		_, ok := framer.Flush()
		Expect(ok).To(BeFalse())
	})
})
