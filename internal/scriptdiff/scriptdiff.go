// Package scriptdiff summarises how a regenerated script differs from the
// file it overwrites.
package scriptdiff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Summary counts changed lines between two versions of a script.
type Summary struct {
	Added     int
	Deleted   int
	Unchanged int
}

// Identical reports whether nothing changed.
func (s Summary) Identical() bool {
	return s.Added == 0 && s.Deleted == 0
}

func (s Summary) String() string {
	if s.Identical() {
		return "no changes"
	}
	return fmt.Sprintf("+%d -%d lines (%d unchanged)", s.Added, s.Deleted, s.Unchanged)
}

// Compare diffs previous against next line by line.
func Compare(previous, next string) Summary {
	if previous == next {
		return Summary{Unchanged: countLines(next)}
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(previous, next)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var summary Summary
	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			summary.Added += n
		case diffmatchpatch.DiffDelete:
			summary.Deleted += n
		case diffmatchpatch.DiffEqual:
			summary.Unchanged += n
		}
	}
	return summary
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
