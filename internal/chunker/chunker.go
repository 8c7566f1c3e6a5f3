// Package chunker cuts heading-delimited documents into token-bounded
// passages. Every chunk re-emits its section's heading prefix so passages
// stay self-describing once they land in the vector index.
package chunker

import (
	"regexp"
	"strings"

	"github.com/harborview-labs/insight/internal/domain"
)

// DefaultMaxTokens is the chunk token budget when none is configured.
const DefaultMaxTokens = 500

// Codec is the token-counting contract the chunker depends on.
type Codec interface {
	Count(text string) int
	Split(text string, maxTokens int) []string
}

// Chunker produces token-bounded chunks from parsed sections.
type Chunker struct {
	codec     Codec
	maxTokens int
}

// New creates a chunker with the given token budget. maxTokens <= 0 falls
// back to DefaultMaxTokens.
func New(codec Codec, maxTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Chunker{codec: codec, maxTokens: maxTokens}
}

var blockSplitRegex = regexp.MustCompile(`\n+`)

// ChunkDocument parses and chunks a raw document in one call.
func (c *Chunker) ChunkDocument(document string) []domain.Chunk {
	return c.Chunk(Parse(document))
}

// Chunk walks each section's paragraph blocks, accumulating units behind
// the heading prefix. Oversized blocks fall back to sentence units, and
// oversized sentences to hard token slices — the only case where a chunk
// may exceed natural language boundaries.
func (c *Chunker) Chunk(sections []domain.Section) []domain.Chunk {
	var chunks []domain.Chunk

	for _, section := range sections {
		prefix := ""
		if section.Heading != "" {
			prefix = "# " + section.Heading + "\n\n"
		}
		prefixTokens := c.codec.Count(prefix)
		contentBudget := c.maxTokens - prefixTokens

		acc := accumulator{
			prefix:       prefix,
			prefixTokens: prefixTokens,
			maxTokens:    c.maxTokens,
			heading:      section.Heading,
		}

		for _, block := range blockSplitRegex.Split(section.Content, -1) {
			block = strings.TrimSpace(block)
			if block == "" {
				continue
			}
			if c.codec.Count(block) <= contentBudget {
				acc.add(block, c.codec.Count(block), &chunks)
				continue
			}
			for _, sentence := range splitSentences(block) {
				sentence = strings.TrimSpace(sentence)
				if sentence == "" {
					continue
				}
				if c.codec.Count(sentence) <= contentBudget {
					acc.add(sentence, c.codec.Count(sentence), &chunks)
					continue
				}
				for _, slice := range c.codec.Split(sentence, contentBudget) {
					slice = strings.TrimSpace(slice)
					acc.add(slice, c.codec.Count(slice), &chunks)
				}
			}
		}

		acc.flushRemainder(&chunks)
	}

	return chunks
}

// accumulator gathers content units for one section. Token accounting
// restarts at prefixTokens after every flush, so the prefix can never push
// a chunk with at least one unit over budget.
type accumulator struct {
	prefix       string
	prefixTokens int
	maxTokens    int
	heading      string

	units  []string
	tokens int
}

func (a *accumulator) add(unit string, unitTokens int, chunks *[]domain.Chunk) {
	if a.tokens == 0 {
		a.tokens = a.prefixTokens
	}
	if a.tokens+unitTokens > a.maxTokens {
		a.flush(chunks)
	}
	a.units = append(a.units, unit)
	a.tokens += unitTokens
}

func (a *accumulator) flush(chunks *[]domain.Chunk) {
	text := strings.TrimSpace(a.prefix + strings.Join(a.units, " "))
	*chunks = append(*chunks, domain.Chunk{
		Text:     text,
		Metadata: domain.ChunkMetadata{MainHeading: a.heading},
	})
	a.units = nil
	a.tokens = a.prefixTokens
}

func (a *accumulator) flushRemainder(chunks *[]domain.Chunk) {
	if len(a.units) > 0 {
		a.flush(chunks)
	}
}

// splitSentences splits a block at whitespace following sentence-ending
// punctuation. Hand-rolled because the boundary must not fire inside
// URL-like "://" sequences and regexp has no lookbehind.
func splitSentences(block string) []string {
	var sentences []string
	runes := []rune(block)
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isSpace(runes[i]) || i == 0 {
			continue
		}
		prev := runes[i-1]
		if prev != '.' && prev != '!' && prev != '?' {
			continue
		}
		if i >= 3 && runes[i-3] == ':' && runes[i-2] == '/' && runes[i-1] == '/' {
			continue
		}
		sentences = append(sentences, string(runes[start:i]))
		for i < len(runes) && isSpace(runes[i]) {
			i++
		}
		start = i
		i--
	}

	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
