package service

import (
	"regexp"
	"strings"

	"github.com/agenthub/knowledge-be/config"
)

// TokenCounter estimates the token count of a text for chunk budgeting.
// Swap in an exact tokenizer when one is available.
type TokenCounter func(text string) int

// ApproxTokenCount is the default counter: roughly four bytes per token.
func ApproxTokenCount(text string) int {
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

// Recursion guard for sentence re-packing of oversized units.
const maxPackDepth = 8

var (
	headingPattern   = regexp.MustCompile(`(?m)^(#{1,6}\s+.+|[0-9一二三四五六七八九十]+[.)、]\s+.+)$`)
	sentencePattern  = regexp.MustCompile(`[^。！？!?.;；…\n]+(?:[。！？!?.;；…]+|$)`)
	clausePattern    = regexp.MustCompile(`[，,、;；]\s*`)
	blankLinePattern = regexp.MustCompile(`\n\s*\n`)
	manyNewlines     = regexp.MustCompile(`\n{3,}`)
)

// ChunkService splits raw document text into token-bounded fragments while
// preserving heading and paragraph structure. It performs no I/O.
type ChunkService struct {
	targetTokens    int
	maxTokens       int
	sentenceOverlap int
	countTokens     TokenCounter
}

// NewChunkService creates a chunk service with the given split budget.
// A nil counter falls back to ApproxTokenCount.
func NewChunkService(cfg config.SplitConfig, counter TokenCounter) *ChunkService {
	if cfg.TargetTokens <= 0 {
		cfg.TargetTokens = 400
	}
	if cfg.MaxTokens < cfg.TargetTokens {
		cfg.MaxTokens = cfg.TargetTokens * 2
	}
	if cfg.SentenceOverlap < 0 {
		cfg.SentenceOverlap = 0
	}
	if counter == nil {
		counter = ApproxTokenCount
	}
	return &ChunkService{
		targetTokens:    cfg.TargetTokens,
		maxTokens:       cfg.MaxTokens,
		sentenceOverlap: cfg.SentenceOverlap,
		countTokens:     counter,
	}
}

// Split chunks a document into an ordered sequence of fragments.
// Sections are detected from heading lines; the heading text is prepended
// to the first fragment of its section. Empty input yields no fragments.
func (s *ChunkService) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var out []string
	for _, sec := range splitByHeadings(text) {
		chunks := s.packUnits(splitParagraphs(sec.body), 0)
		if sec.title != "" && len(chunks) > 0 {
			chunks[0] = sec.title + "\n\n" + chunks[0]
		}
		out = append(out, chunks...)
	}
	return out
}

type section struct {
	title string
	body  string
}

func splitByHeadings(text string) []section {
	matches := headingPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []section{{body: text}}
	}

	var parts []section
	if intro := strings.TrimSpace(text[:matches[0][0]]); intro != "" {
		parts = append(parts, section{body: intro})
	}
	for i, m := range matches {
		title := strings.TrimSpace(text[m[0]:m[1]])
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.TrimSpace(text[m[1]:end])
		if body != "" {
			parts = append(parts, section{title: title, body: body})
		}
	}
	if len(parts) == 0 {
		return []section{{body: text}}
	}
	return parts
}

func splitParagraphs(sectionText string) []string {
	s := manyNewlines.ReplaceAllString(strings.TrimSpace(sectionText), "\n\n")
	var paras []string
	for _, p := range blankLinePattern.Split(s, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// splitSentences breaks a paragraph on CJK and Latin sentence terminators,
// falling back to clause punctuation, and finally to the paragraph itself.
func splitSentences(paragraph string) []string {
	var sentences []string
	for _, m := range sentencePattern.FindAllString(paragraph, -1) {
		if m = strings.TrimSpace(m); m != "" {
			sentences = append(sentences, m)
		}
	}
	if len(sentences) == 0 {
		for _, t := range clausePattern.Split(paragraph, -1) {
			if t = strings.TrimSpace(t); t != "" {
				sentences = append(sentences, t)
			}
		}
	}
	if len(sentences) == 0 {
		return []string{strings.TrimSpace(paragraph)}
	}
	return sentences
}

// packUnits greedily packs units into fragments up to the target budget.
// Units over the max budget are re-split into sentences and packed
// recursively; a unit that cannot be split further is emitted whole, since
// losing text is worse than busting the bound.
func (s *ChunkService) packUnits(units []string, depth int) []string {
	var chunks []string
	var buf []string
	bufTokens := 0

	flush := func() {
		if len(buf) == 0 {
			return
		}
		if c := strings.TrimSpace(strings.Join(buf, "\n")); c != "" {
			chunks = append(chunks, c)
		}
		buf = nil
		bufTokens = 0
	}

	for _, u := range units {
		t := s.countTokens(u)

		if t > s.maxTokens {
			flush()
			sentences := splitSentences(u)
			if depth >= maxPackDepth || (len(sentences) == 1 && sentences[0] == u) {
				chunks = append(chunks, u)
				continue
			}
			chunks = append(chunks, s.packUnits(sentences, depth+1)...)
			continue
		}

		if bufTokens+t <= s.targetTokens {
			buf = append(buf, u)
			bufTokens += t
			continue
		}

		flush()
		if t > s.targetTokens {
			// The unit alone busts the target; overlap would only make it
			// bigger, so it becomes its own fragment.
			chunks = append(chunks, u)
			continue
		}
		if len(chunks) > 0 && s.sentenceOverlap > 0 {
			buf = overlapTail(chunks[len(chunks)-1], s.sentenceOverlap)
			for _, l := range buf {
				bufTokens += s.countTokens(l)
			}
			// Carried lines count against the budget; drop them
			// oldest-first rather than bust the max bound.
			for len(buf) > 0 && bufTokens+t > s.maxTokens {
				bufTokens -= s.countTokens(buf[0])
				buf = buf[1:]
			}
		}
		buf = append(buf, u)
		bufTokens += t
	}
	flush()
	return chunks
}

// overlapTail returns the last n non-empty lines of a fragment, carried
// into the next fragment for embedding continuity.
func overlapTail(chunk string, n int) []string {
	lines := strings.Split(chunk, "\n")
	start := len(lines) - n
	if start < 0 {
		start = 0
	}
	var tail []string
	for _, l := range lines[start:] {
		if l != "" {
			tail = append(tail, l)
		}
	}
	return tail
}
