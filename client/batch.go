package client

import (
	"strings"

	"github.com/dbrelay/dbrelay/protocol"
)

// Template joins literal SQL fragments with positional placeholders and
// binds the interpolated values in order. len(fragments) should be
// len(values)+1; missing fragments are treated as empty.
func Template(fragments []string, values ...any) protocol.Statement {
	var sb strings.Builder
	for i := 0; i <= len(values); i++ {
		if i > 0 {
			sb.WriteByte('?')
		}
		if i < len(fragments) {
			sb.WriteString(fragments[i])
		}
	}
	return protocol.Statement{SQL: sb.String(), Params: values}
}

// Batch collects the ordered statements of one atomic transaction.
type Batch struct {
	statements []protocol.Statement
}

// Add appends a parameterized statement.
func (b *Batch) Add(query string, params ...any) {
	b.statements = append(b.statements, protocol.Statement{SQL: query, Params: params})
}

// AddTemplate appends a statement built from template fragments, like
// Template.
func (b *Batch) AddTemplate(fragments []string, values ...any) {
	b.statements = append(b.statements, Template(fragments, values...))
}

// Len returns the number of statements added so far.
func (b *Batch) Len() int {
	return len(b.statements)
}
