package splitters

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeSentence builds a period-terminated sentence of exactly length runes with no inner boundary.
func makeSentence(i, length int) string {
	s := fmt.Sprintf("Sentence %02d describes how retrieval works", i)
	for len(s) < length-1 {
		s += " and more words"
	}
	body := strings.TrimRight(s[:length-1], " ")
	body += strings.Repeat("x", length-1-len(body))
	return body + "."
}

func makeProse(n, length int) (string, []string) {
	sentences := make([]string, n)
	for i := range sentences {
		sentences[i] = makeSentence(i, length)
	}
	return strings.Join(sentences, " "), sentences
}

func newSplitter(t *testing.T, size, overlap int) *SentenceSplitter {
	t.Helper()
	s, err := NewSentenceSplitter(size, overlap, DefaultMinChunkChars)
	require.NoError(t, err)
	return s
}

func TestMakeSentence(t *testing.T) {
	s := makeSentence(3, 149)
	assert.Equal(t, 149, utf8.RuneCountInString(s))
	assert.Len(t, SplitSentences(s), 1)
}

func TestNewSentenceSplitter_RejectsOverlapNotBelowSize(t *testing.T) {
	_, err := NewSentenceSplitter(100, 100, 10)
	assert.Error(t, err)
	_, err = NewSentenceSplitter(100, -1, 10)
	assert.Error(t, err)
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "   \n\t ", nil},
		{"single without terminator", "no terminator here", []string{"no terminator here"}},
		{"mixed terminators", "One.  Two!\nThree? Four", []string{"One.", "Two!", "Three?", "Four"}},
		{"decimal is not a boundary", "Pi is 3.14 roughly. Next.", []string{"Pi is 3.14 roughly.", "Next."}},
		{"trailing terminator", "End.", []string{"End."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSentences(tt.in))
		})
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	s := newSplitter(t, 1000, 200)
	assert.Empty(t, s.Split(""))
	assert.Empty(t, s.Split(" \n\t  "))
}

func TestSplit_ShortSentenceBelowFloor(t *testing.T) {
	s := newSplitter(t, 1000, 200)
	text := "This sentence has exactly forty chars k."
	require.Equal(t, 40, len(text))
	assert.Empty(t, s.Split(text))
	assert.Empty(t, s.Chunks("one.pdf", text))
}

func TestSplit_ThreeThousandCharacters(t *testing.T) {
	s := newSplitter(t, 1000, 200)
	text, _ := makeProse(21, 149)
	require.InDelta(t, 3000, len(text), 200)

	chunks := s.Split(text)
	require.GreaterOrEqual(t, len(chunks), 3)
	require.LessOrEqual(t, len(chunks), 4)
	for i, c := range chunks {
		n := utf8.RuneCountInString(c)
		assert.GreaterOrEqual(t, n, 800, "chunk %d", i)
		assert.LessOrEqual(t, n, 1200, "chunk %d", i)
	}
}

func TestSplit_OverlapCarriesTrailingSentence(t *testing.T) {
	s := newSplitter(t, 1000, 200)
	text, sentences := makeProse(21, 149)

	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		prev := SplitSentences(chunks[i-1])
		cur := SplitSentences(chunks[i])
		assert.Equal(t, prev[len(prev)-1], cur[0], "chunk %d should start with the previous chunk's last sentence", i)
	}
	assert.True(t, strings.HasPrefix(chunks[0], sentences[0]))
}

func TestSplit_NoOverlap(t *testing.T) {
	s := newSplitter(t, 1000, 0)
	text, sentences := makeProse(21, 149)

	var rebuilt []string
	for _, c := range s.Split(text) {
		rebuilt = append(rebuilt, SplitSentences(c)...)
	}
	assert.Equal(t, sentences, rebuilt)
}

func TestSplit_PreservesAllSentencesInOrder(t *testing.T) {
	s := newSplitter(t, 400, 120)
	text, sentences := makeProse(30, 97)

	var seen []string
	for _, c := range s.Split(text) {
		for _, sentence := range SplitSentences(c) {
			if len(seen) > 0 && seen[len(seen)-1] == sentence {
				continue
			}
			if len(seen) > 1 && seen[len(seen)-2] == sentence {
				continue
			}
			seen = append(seen, sentence)
		}
	}
	assert.Equal(t, sentences, seen)
}

func TestSplit_OversizedSentenceStandsAlone(t *testing.T) {
	s := newSplitter(t, 200, 50)
	long := makeSentence(1, 500)
	text := makeSentence(0, 120) + " " + long + " " + makeSentence(2, 120)

	chunks := s.Split(text)
	require.Len(t, chunks, 3)
	assert.Equal(t, long, chunks[1])
}

func TestSplit_ShortSentenceBeforeOversizedIsKept(t *testing.T) {
	s := newSplitter(t, 1000, 200)
	intro := "Short intro here."
	long := makeSentence(1, 1205)
	closing := makeSentence(2, 120)
	text := intro + " " + long + " " + closing

	chunks := s.Split(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, intro+" "+long, chunks[0])
	assert.Equal(t, closing, chunks[1])
	for _, c := range chunks {
		assert.GreaterOrEqual(t, utf8.RuneCountInString(c), DefaultMinChunkChars)
	}
}

func TestSplit_EveryChunkMeetsFloor(t *testing.T) {
	s := newSplitter(t, 300, 100)
	inputs := []string{
		"Hi. " + makeSentence(0, 400) + " Ok.",
		"A! B? C. " + makeSentence(1, 60),
		strings.Repeat("Tiny. ", 200),
	}
	for _, in := range inputs {
		for _, c := range s.Split(in) {
			assert.GreaterOrEqual(t, utf8.RuneCountInString(c), DefaultMinChunkChars)
		}
	}
}

func TestChunks_AssignsIdentity(t *testing.T) {
	s := newSplitter(t, 1000, 200)
	text, _ := makeProse(21, 149)

	chunks := s.Chunks("report.pdf", text)
	require.NotEmpty(t, chunks)
	ids := map[string]bool{}
	for _, c := range chunks {
		assert.Equal(t, "report.pdf", c.SourceID)
		assert.Equal(t, utf8.RuneCountInString(c.Content), c.Size)
		assert.NotEmpty(t, c.ID)
		assert.False(t, ids[c.ID])
		ids[c.ID] = true
	}
}
