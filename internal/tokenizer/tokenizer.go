// Package tokenizer provides the deterministic token counter the chunker
// uses for all budget arithmetic. Two encodings are supported: a real
// byte-pair-encoding counter for production use, and a whitespace counter
// used by the worked examples in the testable-properties section, whose
// expected chunk counts are defined against word-level counting so they
// stay inspectable by hand.
package tokenizer

import (
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens in a string deterministically: for all a, b,
// Count(a) + Count(b) <= Count(a+b) + k for a small encoding-specific
// constant k (BPE boundary slack).
type Counter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens using a named BPE encoding (cl100k_base by
// default, matching the embedding/LLM models this processor talks to).
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding. Supported names are
// whatever github.com/pkoukk/tiktoken-go recognizes ("cl100k_base",
// "p50k_base", ...).
func NewTiktokenCounter(encodingName string) (*TiktokenCounter, error) {
	if encodingName == "" {
		encodingName = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// WhitespaceCounter counts tokens as words and standalone punctuation
// marks, ignoring whitespace itself. It exists so the spec's worked
// examples (chunk_tokens=12 over short Russian sentences, and similar)
// produce the exact counts documented against them, independent of
// whichever real BPE vocabulary is configured for production use.
type WhitespaceCounter struct{}

func NewWhitespaceCounter() *WhitespaceCounter { return &WhitespaceCounter{} }

func (WhitespaceCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if inWord {
				count++
				inWord = false
			}
		case unicode.IsPunct(r):
			if inWord {
				count++
				inWord = false
			}
			count++
		default:
			inWord = true
		}
	}
	if inWord {
		count++
	}
	return count
}

// cachedCounterSize bounds the repeat-text count cache. The chunker
// re-counts the same table header, separator, and overlap text many times
// while packing row groups, and the same document boilerplate (running
// headers, footers, disclaimers) recurs across chunks within a document
// and across documents from the same source.
const cachedCounterSize = 4096

// CachedCounter wraps a Counter with an LRU cache keyed by the exact text
// counted, avoiding repeat BPE encoding of text the chunker has already
// measured.
type CachedCounter struct {
	inner Counter
	cache *lru.Cache[string, int]
}

// NewCachedCounter wraps inner with a bounded count cache.
func NewCachedCounter(inner Counter) *CachedCounter {
	cache, _ := lru.New[string, int](cachedCounterSize)
	return &CachedCounter{inner: inner, cache: cache}
}

func (c *CachedCounter) Count(text string) int {
	if n, ok := c.cache.Get(text); ok {
		return n
	}
	n := c.inner.Count(text)
	c.cache.Add(text, n)
	return n
}

// New builds the counter named by encoding, which is either "whitespace"
// or a tiktoken encoding name. The whitespace counter exists for the
// worked examples and is cheap enough to run uncached; the tiktoken
// counter is wrapped in CachedCounter since BPE encoding dominates
// chunking cost on large tables and documents with repeated boilerplate.
func New(encoding string) (Counter, error) {
	if encoding == "" || strings.EqualFold(encoding, "whitespace") {
		return NewWhitespaceCounter(), nil
	}
	counter, err := NewTiktokenCounter(encoding)
	if err != nil {
		return nil, err
	}
	return NewCachedCounter(counter), nil
}
