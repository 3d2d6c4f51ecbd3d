package splitter

import (
	"github.com/tmc/langchaingo/textsplitter"
)

// Splitter chunks report text for the findings archive.
type Splitter struct {
	inner textsplitter.TextSplitter
}

// New creates a recursive character splitter with the given chunk geometry.
func New(chunkSize, chunkOverlap int) *Splitter {
	ts := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)
	return &Splitter{inner: ts}
}

// Split splits text into chunks.
func (s *Splitter) Split(text string) ([]string, error) {
	return s.inner.SplitText(text)
}
