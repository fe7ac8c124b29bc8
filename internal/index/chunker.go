package index

import (
	"regexp"
	"strconv"
	"strings"
)

var sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// Chunk is a passage of one paper. ID is "<embedding id>_<position>".
type Chunk struct {
	PaperID  int
	ID       string
	Text     string
	Position int
}

// Chunker splits text into runs of sentences that overlap by a few sentences.
type Chunker struct {
	sentencesPerChunk int
	overlapSentences  int
}

func NewChunker(sentencesPerChunk, overlapSentences int) *Chunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 || overlapSentences >= sentencesPerChunk {
		overlapSentences = 0
	}
	return &Chunker{sentencesPerChunk: sentencesPerChunk, overlapSentences: overlapSentences}
}

// Split returns the chunks of text for the given paper.
func (c *Chunker) Split(paperID int, embeddingID, text string) []Chunk {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}
	var chunks []Chunk
	for i, pos := 0, 0; i < len(sentences); pos++ {
		end := min(i+c.sentencesPerChunk, len(sentences))
		chunks = append(chunks, Chunk{
			PaperID:  paperID,
			ID:       embeddingID + "_" + strconv.Itoa(pos),
			Text:     strings.Join(sentences[i:end], " "),
			Position: pos,
		})
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks
}

// splitSentences finds terminated sentences; trailing text without a final
// period becomes a sentence of its own.
func splitSentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}
	locs := sentenceRe.FindAllStringIndex(text, -1)
	out := make([]string, 0, len(locs)+1)
	last := 0
	for _, l := range locs {
		if s := strings.TrimSpace(text[l[0]:l[1]]); s != "" {
			out = append(out, s)
		}
		last = l[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		out = append(out, tail)
	}
	return out
}
