package hammer

import "fmt"

// Location is a position within a source file.  Offset is the byte
// position, Line and Column are 1-based; columns count runes.  The
// lexer maintains all three incrementally while it scans, so there is
// no separate line table to build or search.
type Location struct {
	Line   int
	Column int
	Offset int
}

// Span is a half-open source region delimited by two locations.
type Span struct {
	Start Location
	End   Location
}

func (s Span) String() string {
	switch {
	case s.Start.Line != s.End.Line:
		return fmt.Sprintf("%d:%d-%d:%d", s.Start.Line, s.Start.Column, s.End.Line, s.End.Column)
	case s.Start.Column != s.End.Column:
		return fmt.Sprintf("%d:%d-%d", s.Start.Line, s.Start.Column, s.End.Column)
	default:
		return fmt.Sprintf("%d:%d", s.Start.Line, s.Start.Column)
	}
}

// Text returns the source bytes the span covers.
func (s Span) Text(input []byte) string {
	return string(input[s.Start.Offset:s.End.Offset])
}
