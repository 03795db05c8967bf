package service

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthub/knowledge-be/config"
)

// wordCounter makes token budgets exact in tests: one token per word.
func wordCounter(text string) int {
	return len(strings.Fields(text))
}

func TestApproxTokenCount(t *testing.T) {
	assert.Equal(t, 1, ApproxTokenCount(""))
	assert.Equal(t, 1, ApproxTokenCount("abcd"))
	assert.Equal(t, 2, ApproxTokenCount("abcdefgh"))
}

func TestSplitEmptyInput(t *testing.T) {
	s := NewChunkService(config.SplitConfig{}, nil)
	assert.Nil(t, s.Split(""))
	assert.Nil(t, s.Split("   \n\t  "))
}

func TestSplitSingleShortParagraph(t *testing.T) {
	s := NewChunkService(config.SplitConfig{}, nil)
	chunks := s.Split("Hello world, a short note.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Hello world, a short note.", chunks[0])
}

func TestSplitHeadingPrependedToFirstFragment(t *testing.T) {
	s := NewChunkService(config.SplitConfig{}, nil)

	t.Run("markdown heading", func(t *testing.T) {
		chunks := s.Split("# Install\n\nDownload the binary and run it.")
		require.Len(t, chunks, 1)
		assert.Equal(t, "# Install\n\nDownload the binary and run it.", chunks[0])
	})

	t.Run("intro before first heading", func(t *testing.T) {
		chunks := s.Split("Some intro text.\n\n# Usage\n\nRun the command.")
		require.Len(t, chunks, 2)
		assert.Equal(t, "Some intro text.", chunks[0])
		assert.Equal(t, "# Usage\n\nRun the command.", chunks[1])
	})

	t.Run("numbered heading", func(t *testing.T) {
		chunks := s.Split("1. Overview\n\nThe system has two parts.")
		require.Len(t, chunks, 1)
		assert.True(t, strings.HasPrefix(chunks[0], "1. Overview"))
		assert.Contains(t, chunks[0], "The system has two parts.")
	})
}

func TestSplitPacksToTargetBudget(t *testing.T) {
	s := NewChunkService(config.SplitConfig{
		TargetTokens:    5,
		MaxTokens:       10,
		SentenceOverlap: 0,
	}, wordCounter)

	chunks := s.Split("one two\n\nthree four\n\nfive six")
	require.Equal(t, []string{"one two\nthree four", "five six"}, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, wordCounter(c), 10)
	}
}

func TestSplitOverlapCarriesTailLines(t *testing.T) {
	s := NewChunkService(config.SplitConfig{
		TargetTokens:    4,
		MaxTokens:       8,
		SentenceOverlap: 1,
	}, wordCounter)

	chunks := s.Split("alpha beta\n\ngamma delta\n\nepsilon zeta")
	require.Len(t, chunks, 2)
	assert.Equal(t, "alpha beta\ngamma delta", chunks[0])
	// The last line of the previous fragment leads the next one.
	assert.Equal(t, "gamma delta\nepsilon zeta", chunks[1])
}

func TestSplitOverlapRespectsMaxBudget(t *testing.T) {
	s := NewChunkService(config.SplitConfig{
		TargetTokens:    4,
		MaxTokens:       6,
		SentenceOverlap: 1,
	}, wordCounter)

	// The carried tail would push every fragment to 8 tokens; it must be
	// dropped instead.
	chunks := s.Split("a1 a2 a3 a4\n\nb1 b2 b3 b4\n\nc1 c2 c3 c4")
	require.Equal(t, []string{"a1 a2 a3 a4", "b1 b2 b3 b4", "c1 c2 c3 c4"}, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, wordCounter(c), 6)
	}
}

func TestSplitOversizedParagraphNoDuplication(t *testing.T) {
	s := NewChunkService(config.SplitConfig{
		TargetTokens:    4,
		MaxTokens:       6,
		SentenceOverlap: 1,
	}, wordCounter)

	chunks := s.Split("a1 a2 a3 a4. b1 b2 b3 b4. c1 c2 c3 c4.")
	require.Equal(t, []string{"a1 a2 a3 a4.", "b1 b2 b3 b4.", "c1 c2 c3 c4."}, chunks)
}

func TestSplitOversizedParagraphSplitsOnSentences(t *testing.T) {
	s := NewChunkService(config.SplitConfig{
		TargetTokens:    3,
		MaxTokens:       5,
		SentenceOverlap: 0,
	}, wordCounter)

	chunks := s.Split("one two three four. five six seven eight.")
	require.Len(t, chunks, 2)
	assert.Equal(t, "one two three four.", chunks[0])
	assert.Equal(t, "five six seven eight.", chunks[1])
}

func TestSplitUnsplittableUnitEmittedWhole(t *testing.T) {
	s := NewChunkService(config.SplitConfig{
		TargetTokens:    3,
		MaxTokens:       5,
		SentenceOverlap: 0,
	}, wordCounter)

	text := "w1 w2 w3 w4 w5 w6 w7 w8 w9 w10"
	chunks := s.Split(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplitCJKSentences(t *testing.T) {
	s := NewChunkService(config.SplitConfig{
		TargetTokens:    2,
		MaxTokens:       4,
		SentenceOverlap: 0,
	}, func(text string) int { return len([]rune(text)) / 3 })

	chunks := s.Split("这是第一句话内容。这是第二句话内容。这是第三句话内容。")
	require.NotEmpty(t, chunks)
	joined := strings.Join(chunks, "")
	assert.Contains(t, joined, "第一句")
	assert.Contains(t, joined, "第三句")
}

// Packs a generated corpus and checks the two fragment invariants at
// once: no fragment exceeds the max budget, and stripping the carried
// overlap lines reconstructs every unit exactly once in document order.
func TestSplitBudgetAndCoverageOverGeneratedCorpus(t *testing.T) {
	const (
		target  = 12
		max     = 20
		overlap = 2
	)
	s := NewChunkService(config.SplitConfig{
		TargetTokens:    target,
		MaxTokens:       max,
		SentenceOverlap: overlap,
	}, wordCounter)

	var paras []string
	for p := 0; p < 40; p++ {
		var sents []string
		for q := 0; q <= p%5; q++ {
			var words []string
			for w := 0; w < (p+q)%7+2; w++ {
				words = append(words, fmt.Sprintf("p%dq%dw%d", p, q, w))
			}
			sents = append(sents, strings.Join(words, " ")+".")
		}
		paras = append(paras, strings.Join(sents, " "))
	}

	chunks := s.Split(strings.Join(paras, "\n\n"))
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.LessOrEqual(t, wordCounter(c), max, "fragment over budget: %q", c)
	}

	// The units the packer works with: whole paragraphs, or their
	// sentences when the paragraph alone exceeds the max budget.
	var want []string
	for _, p := range paras {
		if wordCounter(p) > max {
			want = append(want, splitSentences(p)...)
		} else {
			want = append(want, p)
		}
	}

	seen := make(map[string]bool)
	var got []string
	for i, c := range chunks {
		carried := 0
		for _, line := range strings.Split(c, "\n") {
			if seen[line] {
				carried++
				continue
			}
			seen[line] = true
			got = append(got, line)
		}
		if i == 0 {
			assert.Zero(t, carried)
		}
		assert.LessOrEqual(t, carried, overlap,
			"fragment %d repeats more lines than the declared overlap", i)
	}
	assert.Equal(t, want, got)
}

func TestSplitOrderPreserved(t *testing.T) {
	s := NewChunkService(config.SplitConfig{
		TargetTokens:    2,
		MaxTokens:       4,
		SentenceOverlap: 0,
	}, wordCounter)

	chunks := s.Split("first part\n\nsecond part\n\nthird part")
	require.Len(t, chunks, 3)
	assert.Equal(t, "first part", chunks[0])
	assert.Equal(t, "second part", chunks[1])
	assert.Equal(t, "third part", chunks[2])
}
