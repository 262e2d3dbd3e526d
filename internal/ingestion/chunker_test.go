package ingestion

import (
	"strings"
	"testing"
)

func Test_Chunker_ShortTextIsOneChunk(t *testing.T) {
	t.Parallel()
	c := NewChunker(2000, 300)

	chunks := c.Split("kısa bir metin")
	if len(chunks) != 1 || chunks[0] != "kısa bir metin" {
		t.Fatalf("want single chunk, got %v", chunks)
	}
}

func Test_Chunker_EmptyInputYieldsNothing(t *testing.T) {
	t.Parallel()
	c := NewChunker(2000, 300)

	if got := c.Split("   \n\t  "); got != nil {
		t.Fatalf("want nil for whitespace input, got %v", got)
	}
}

func Test_Chunker_LongTextOverlaps(t *testing.T) {
	t.Parallel()
	c := NewChunker(100, 20)

	var b strings.Builder
	for i := 0; i < 60; i++ {
		b.WriteString("kelime ")
	}
	chunks := c.Split(b.String())

	if len(chunks) < 2 {
		t.Fatalf("want multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if n := len([]rune(chunk)); n > 100 {
			t.Errorf("chunk %d exceeds window: %d runes", i, n)
		}
	}
	// Consecutive chunks must share text from the overlap region.
	tail := chunks[0][len(chunks[0])-10:]
	if !strings.Contains(chunks[1], strings.TrimSpace(tail)) {
		t.Errorf("chunk 1 does not overlap chunk 0: tail %q not in %q", tail, chunks[1])
	}
}

func Test_Chunker_PrefersSectionBoundary(t *testing.T) {
	t.Parallel()
	c := NewChunker(100, 10)

	// A blank line sits inside the boundary search zone of the first window.
	section1 := strings.Repeat("a", 88)
	section2 := strings.Repeat("b", 80)
	text := section1 + "\n\n" + section2

	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("want at least 2 chunks, got %d", len(chunks))
	}
	if strings.Contains(chunks[0], "b") {
		t.Errorf("first chunk crossed the blank-line boundary: %q", chunks[0])
	}
}

func Test_Chunker_CountsRunesNotBytes(t *testing.T) {
	t.Parallel()
	c := NewChunker(50, 5)

	// Multi-byte Turkish characters; byte-based windows would cut mid-rune.
	text := strings.Repeat("ığüşöçİ ", 30)
	for i, chunk := range c.Split(text) {
		if !strings.ContainsAny(chunk, "ığüşöçİ") {
			t.Errorf("chunk %d lost content: %q", i, chunk)
		}
		if strings.ContainsRune(chunk, '�') {
			t.Errorf("chunk %d contains a broken rune: %q", i, chunk)
		}
	}
}
