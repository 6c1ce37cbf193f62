// Package ingest turns raw document text into embedded chunks and keeps the
// in-process search indexes in sync with the store. Approval of a document
// triggers a full statistics rebuild here, never an incremental patch.
package ingest

import (
	"strings"

	"github.com/lorekeep/lorekeep/internal/knowledge"
)

// Chunk sizing in approximate tokens (whitespace words).
const (
	DefaultChunkTokens = 500
	minChunkTokens     = 20
)

// Chunker splits document text into embedding-sized chunks.
type Chunker struct {
	// TargetTokens is the soft chunk size; 0 means DefaultChunkTokens.
	TargetTokens int
}

// Split breaks content into chunks along paragraph boundaries, packing
// paragraphs until the target size. Oversized paragraphs are split on word
// boundaries. Each chunk carries its prepared (context-enriched) text and
// structured-content flags; embeddings are added later by the Indexer.
func (c Chunker) Split(doc knowledge.Document, content string) []knowledge.Chunk {
	target := c.TargetTokens
	if target <= 0 {
		target = DefaultChunkTokens
	}

	var parts []string
	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if tokenCount(para) <= target {
			parts = append(parts, para)
			continue
		}
		parts = append(parts, splitWords(para, target)...)
	}

	var (
		chunks  []knowledge.Chunk
		current []string
		size    int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		body := strings.Join(current, "\n\n")
		chunks = append(chunks, knowledge.Chunk{
			DocumentID: doc.ID,
			Ordinal:    len(chunks),
			Text:       body,
			Prepared:   prepare(doc, body),
			HasTable:   hasTable(body),
			HasCode:    hasCode(body),
			Visual:     visualDescriptor(body),
			Title:      doc.Title,
			Source:     doc.Source,
			Category:   doc.Category,
			TechLevel:  doc.TechLevel,
			Approved:   doc.Approved,
		})
		current = current[:0]
		size = 0
	}

	for _, part := range parts {
		n := tokenCount(part)
		if size > 0 && size+n > target {
			flush()
		}
		current = append(current, part)
		size += n
	}
	flush()

	// Merge a trailing fragment into its predecessor so no chunk is too
	// small to carry meaning.
	if n := len(chunks); n > 1 && tokenCount(chunks[n-1].Text) < minChunkTokens {
		last := chunks[n-1]
		chunks = chunks[:n-1]
		prev := &chunks[n-2]
		prev.Text += "\n\n" + last.Text
		prev.Prepared = prepare(doc, prev.Text)
		prev.HasTable = prev.HasTable || last.HasTable
		prev.HasCode = prev.HasCode || last.HasCode
		if prev.Visual == "" {
			prev.Visual = last.Visual
		}
	}
	return chunks
}

// prepare prefixes document context so the embedding captures where the
// text came from, not just what it says.
func prepare(doc knowledge.Document, body string) string {
	var sb strings.Builder
	sb.WriteString(doc.Title)
	if doc.Source != "" {
		sb.WriteString(" (")
		sb.WriteString(doc.Source)
		sb.WriteString(")")
	}
	sb.WriteString("\n\n")
	sb.WriteString(body)
	return sb.String()
}

func splitWords(text string, target int) []string {
	words := strings.Fields(text)
	var out []string
	for start := 0; start < len(words); start += target {
		end := min(start+target, len(words))
		out = append(out, strings.Join(words[start:end], " "))
	}
	return out
}

func tokenCount(text string) int {
	return len(strings.Fields(text))
}

// hasTable detects markdown tables: a separator row of pipes and dashes.
func hasTable(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "|") || !strings.Contains(line, "-") {
			continue
		}
		if strings.Trim(line, "|-: \t") == "" {
			return true
		}
	}
	return false
}

func hasCode(body string) bool {
	return strings.Contains(body, "```")
}

// visualDescriptor labels chunks whose content is primarily visual, used by
// the reranker's fallback when a query asks for charts or tables.
func visualDescriptor(body string) string {
	lower := strings.ToLower(body)
	switch {
	case hasTable(body):
		return "table"
	case strings.Contains(lower, "![") || strings.Contains(lower, "<img"):
		return "image"
	case strings.Contains(lower, "diagram"):
		return "diagram"
	case strings.Contains(lower, "chart"):
		return "chart"
	default:
		return ""
	}
}
