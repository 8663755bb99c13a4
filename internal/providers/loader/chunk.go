package loader

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"

	"github.com/sandevgo/docqa/internal/core"
)

// Tokenizer counts and slices text in model tokens. The default is tiktoken's
// cl100k_base; tests substitute a cheap word-based one.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type ChunkerConfig struct {
	MaxTokens     int
	OverlapTokens int
}

// DefaultChunkerConfig matches the upload defaults: ~1000 characters of
// English text per chunk with a fifth of overlap.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		MaxTokens:     250,
		OverlapTokens: 50,
	}
}

// Chunker splits extracted text into token-bounded, sentence-aligned chunks
// with overlap between neighbors.
type Chunker struct {
	tok Tokenizer
	cfg ChunkerConfig
}

func NewChunker(tok Tokenizer, cfg ChunkerConfig) *Chunker {
	if cfg.MaxTokens <= 0 {
		cfg = DefaultChunkerConfig()
	}
	if cfg.OverlapTokens >= cfg.MaxTokens {
		cfg.OverlapTokens = cfg.MaxTokens / 5
	}
	return &Chunker{tok: tok, cfg: cfg}
}

// Split chunks text, tagging every chunk with source and a running index.
func (c *Chunker) Split(text, source string) []core.Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := splitSentences(text)

	var chunks []core.Chunk
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, core.Chunk{
			Text:      strings.TrimSpace(current.String()),
			Source:    source,
			Index:     len(chunks),
			TokenSize: currentTokens,
		})
		current.Reset()
		currentTokens = 0
	}

	for i, sentence := range sentences {
		n := len(c.tok.Encode(sentence))

		// A sentence longer than a whole chunk gets sliced on raw token
		// boundaries.
		if n > c.cfg.MaxTokens {
			flush()
			for _, piece := range c.sliceByTokens(sentence) {
				chunks = append(chunks, core.Chunk{
					Text:      strings.TrimSpace(piece.Text),
					Source:    source,
					Index:     len(chunks),
					TokenSize: piece.TokenSize,
				})
			}
			continue
		}

		if currentTokens+n > c.cfg.MaxTokens && current.Len() > 0 {
			flush()
			overlap := c.overlapTail(sentences, i)
			current.WriteString(overlap)
			currentTokens = len(c.tok.Encode(overlap))
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
		currentTokens += n
	}
	flush()

	return chunks
}

func (c *Chunker) sliceByTokens(text string) []core.Chunk {
	tokens := c.tok.Encode(text)

	var pieces []core.Chunk
	for i := 0; i < len(tokens); i += c.cfg.MaxTokens {
		end := min(i+c.cfg.MaxTokens, len(tokens))
		pieces = append(pieces, core.Chunk{
			Text:      c.tok.Decode(tokens[i:end]),
			TokenSize: end - i,
		})
	}
	return pieces
}

// overlapTail collects up to OverlapTokens worth of the sentences preceding
// index i, so neighboring chunks share context.
func (c *Chunker) overlapTail(sentences []string, i int) string {
	var parts []string
	total := 0
	for j := i - 1; j >= 0; j-- {
		n := len(c.tok.Encode(sentences[j]))
		if total+n > c.cfg.OverlapTokens {
			break
		}
		parts = append([]string{sentences[j]}, parts...)
		total += n
	}
	return strings.Join(parts, " ")
}

var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true, '…': true,
}

// splitSentences breaks text into sentences, treating blank lines as hard
// boundaries and single newlines as soft wraps.
func splitSentences(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var sentences []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(strings.ReplaceAll(para, "\n", " "))
		if para == "" {
			continue
		}

		var current strings.Builder
		runes := []rune(para)
		for i, r := range runes {
			current.WriteRune(r)
			if sentenceEnders[r] && (i+1 >= len(runes) || unicode.IsSpace(runes[i+1])) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
	}

	if len(sentences) == 0 && text != "" {
		return []string{text}
	}
	return sentences
}

var (
	tkOnce sync.Once
	tk     *tiktoken.Tiktoken
	tkErr  error
)

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer returns the shared cl100k_base tokenizer.
func NewTiktokenTokenizer() (Tokenizer, error) {
	tkOnce.Do(func() {
		tk, tkErr = tiktoken.GetEncoding("cl100k_base")
	})
	if tkErr != nil {
		return nil, fmt.Errorf("load tokenizer: %w", tkErr)
	}
	return &tiktokenTokenizer{enc: tk}, nil
}

func (t *tiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *tiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
