package ledger

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: for any sequence of appends, sequence indexes are exactly
// 0..n-1 with no gaps or repeats, and append order is preserved.
func TestProperty_SequenceIndexesAreDense(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("appends produce dense ordered indexes", prop.ForAll(
		func(contents []string) bool {
			l := New("conv-prop", nil)
			for _, c := range contents {
				if _, err := l.Append("speaker", c); err != nil {
					return false
				}
			}
			snap := l.Snapshot()
			if len(snap) != len(contents) {
				return false
			}
			for i, u := range snap {
				if u.SequenceIndex != i || u.Content != contents[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AnyString()),
	))

	properties.Property("digest renders once per utterance and is stable", prop.ForAll(
		func(contents []string) bool {
			l := New("conv-prop", nil)
			for _, c := range contents {
				if _, err := l.Append("s", c); err != nil {
					return false
				}
			}
			first := l.RenderDigest()
			second := l.RenderDigest()
			if first != second {
				return false
			}
			if len(contents) == 0 {
				return first == EmptyDigest
			}
			return first != EmptyDigest
		},
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t)
}
