// Package tokenizer wraps a fixed BPE vocabulary. One codec is shared by
// the chunker and any length-bounded prompt composition so token budgets
// stay comparable across the pipeline.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Encoding is the fixed vocabulary used everywhere in the pipeline.
const Encoding = "cl100k_base"

// Codec counts and slices text by BPE tokens.
type Codec struct {
	enc *tiktoken.Tiktoken
}

// New loads the fixed encoding.
func New() (*Codec, error) {
	enc, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", Encoding, err)
	}
	return &Codec{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (c *Codec) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Split hard-slices text into pieces of at most maxTokens tokens each.
// Slice boundaries follow raw token positions, not language boundaries.
func (c *Codec) Split(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		return []string{text}
	}
	tokens := c.enc.Encode(text, nil, nil)
	splits := make([]string, 0, (len(tokens)+maxTokens-1)/maxTokens)
	for i := 0; i < len(tokens); i += maxTokens {
		end := min(i+maxTokens, len(tokens))
		splits = append(splits, c.enc.Decode(tokens[i:end]))
	}
	return splits
}
