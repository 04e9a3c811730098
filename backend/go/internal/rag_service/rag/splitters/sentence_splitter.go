package splitters

import (
	"DocRAG/backend/go/internal/rag_service/rag/interfaces"
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	DefaultChunkSize     = 1000
	DefaultChunkOverlap  = 200
	DefaultMinChunkChars = 50

	// maxOverlapSentences bounds how many trailing sentences are carried into the next chunk.
	maxOverlapSentences = 2
)

// SentenceSplitter greedily packs whole sentences into chunks of at most ChunkSize characters.
// Sentences are never cut, so a single sentence longer than ChunkSize becomes its own chunk,
// joined by any preceding sentences too short to stand alone.
// Lengths are counted in runes.
type SentenceSplitter struct {
	ChunkSize     int
	ChunkOverlap  int
	MinChunkChars int
}

// NewSentenceSplitter creates a SentenceSplitter. Zero values select the defaults.
func NewSentenceSplitter(chunkSize, chunkOverlap, minChunkChars int) (*SentenceSplitter, error) {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if minChunkChars == 0 {
		minChunkChars = DefaultMinChunkChars
	}
	if chunkSize < 0 || chunkOverlap < 0 || minChunkChars < 0 {
		return nil, fmt.Errorf("chunk size, overlap and minimum must not be negative")
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", chunkOverlap, chunkSize)
	}
	return &SentenceSplitter{
		ChunkSize:     chunkSize,
		ChunkOverlap:  chunkOverlap,
		MinChunkChars: minChunkChars,
	}, nil
}

// Split returns the chunk texts for text. It never fails; malformed input just yields fewer chunks.
func (s *SentenceSplitter) Split(text string) []string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var (
		chunks []string
		buf    []string
		bufLen int
		fresh  int // sentences in buf that were not carried over
	)

	reset := func(seed []string) {
		buf = seed
		bufLen = joinedLen(seed)
		fresh = 0
	}

	for _, sentence := range sentences {
		n := utf8.RuneCountInString(sentence)
		full := len(buf) > 0 && bufLen+1+n > s.ChunkSize
		// a buffer below the floor would be discarded on close, so it absorbs the sentence instead
		if full && fresh > 0 && bufLen < s.MinChunkChars {
			full = false
		}
		if full {
			if fresh > 0 {
				chunks = s.appendChunk(chunks, buf)
				reset(s.overlapSeed(buf))
			} else {
				reset(nil)
			}
			// a seed that cannot fit next to the sentence would only produce a carried-over chunk
			if len(buf) > 0 && bufLen+1+n > s.ChunkSize {
				reset(nil)
			}
		}
		if len(buf) > 0 {
			bufLen++
		}
		buf = append(buf, sentence)
		bufLen += n
		fresh++
	}
	if fresh > 0 {
		chunks = s.appendChunk(chunks, buf)
	}
	return chunks
}

// Chunks splits text and wraps every piece as a schema.Chunk for sourceID.
func (s *SentenceSplitter) Chunks(sourceID, text string) []schema.Chunk {
	texts := s.Split(text)
	chunks := make([]schema.Chunk, 0, len(texts))
	for _, t := range texts {
		chunks = append(chunks, schema.Chunk{
			ID:       uuid.New().String(),
			Content:  t,
			SourceID: sourceID,
			Size:     utf8.RuneCountInString(t),
		})
	}
	return chunks
}

func (s *SentenceSplitter) appendChunk(chunks, buf []string) []string {
	text := strings.TrimSpace(strings.Join(buf, " "))
	if utf8.RuneCountInString(text) < s.MinChunkChars {
		return chunks
	}
	return append(chunks, text)
}

// overlapSeed returns the trailing sentences of buf (at most maxOverlapSentences) whose joined
// length fits in ChunkOverlap.
func (s *SentenceSplitter) overlapSeed(buf []string) []string {
	if s.ChunkOverlap <= 0 {
		return nil
	}
	start := len(buf)
	for i := len(buf) - 1; i >= 0 && len(buf)-i <= maxOverlapSentences; i-- {
		if joinedLen(buf[i:]) > s.ChunkOverlap {
			break
		}
		start = i
	}
	if start == len(buf) {
		return nil
	}
	seed := make([]string, len(buf)-start)
	copy(seed, buf[start:])
	return seed
}

func joinedLen(parts []string) int {
	if len(parts) == 0 {
		return 0
	}
	n := len(parts) - 1
	for _, p := range parts {
		n += utf8.RuneCountInString(p)
	}
	return n
}

// NormalizeWhitespace collapses every whitespace run to a single space and trims the ends.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " ")
}

// SplitSentences normalizes whitespace and cuts text after '.', '!' or '?' followed by a space.
func SplitSentences(text string) []string {
	text = NormalizeWhitespace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' {
				sentences = append(sentences, text[start:i+1])
				start = i + 2
				i++
			}
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

var _ interfaces.Splitter = (*SentenceSplitter)(nil)
