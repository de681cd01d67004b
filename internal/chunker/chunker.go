// Package chunker splits normalized text into bounded, sentence-aligned
// segments suitable for embedding.
package chunker

import (
	"regexp"
	"strings"
)

// DefaultSoftCap is the target chunk size in characters. A chunk may
// exceed it by at most one sentence.
const DefaultSoftCap = 500

var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+|[^.!?]+$`)

// Split breaks text into chunks of roughly softCap characters. Sentences
// are accumulated greedily; a sentence that would push a non-empty chunk
// over the cap starts a new chunk instead. Sentence content is never
// truncated or dropped, only whitespace is normalized. Any non-empty
// input yields at least one chunk, including input with no sentence
// boundary at all.
func Split(text string, softCap int) []string {
	if softCap <= 0 {
		softCap = DefaultSoftCap
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var sentences []string
	for _, s := range sentenceRe.FindAllString(text, -1) {
		s = strings.Join(strings.Fields(s), " ")
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return []string{strings.Join(strings.Fields(text), " ")}
	}

	var chunks []string
	var cur strings.Builder
	for _, s := range sentences {
		if cur.Len() > 0 && cur.Len()+1+len(s) > softCap {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(s)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
