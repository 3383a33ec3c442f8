package report

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/raysh454/webaudit/internal/model"
	"github.com/raysh454/webaudit/internal/render"
)

const (
	ChunkAdded     = "added"
	ChunkRemoved   = "removed"
	ChunkUnchanged = "unchanged"
)

// Chunk is one step row of a diff.
type Chunk struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Diff compares the step rows of two scans line by line.
func Diff(base, head []model.TestStepResult) []Chunk {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(rowsText(base), rowsText(head))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	chunks := make([]Chunk, 0)
	for _, d := range diffs {
		var chunkType string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			chunkType = ChunkAdded
		case diffmatchpatch.DiffDelete:
			chunkType = ChunkRemoved
		case diffmatchpatch.DiffEqual:
			chunkType = ChunkUnchanged
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			if line == "" {
				continue
			}
			chunks = append(chunks, Chunk{Type: chunkType, Content: line})
		}
	}
	return chunks
}

// FormatDiff renders chunks with "+", "-" and " " line prefixes.
func FormatDiff(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		switch c.Type {
		case ChunkAdded:
			b.WriteString("+ ")
		case ChunkRemoved:
			b.WriteString("- ")
		default:
			b.WriteString("  ")
		}
		b.WriteString(c.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

// Changed reports whether any chunk is an addition or removal.
func Changed(chunks []Chunk) bool {
	for _, c := range chunks {
		if c.Type != ChunkUnchanged {
			return true
		}
	}
	return false
}

func rowsText(tests []model.TestStepResult) string {
	var b strings.Builder
	for _, t := range tests {
		b.WriteString(render.StepRowFor(t).Text)
		b.WriteByte('\n')
	}
	return b.String()
}
