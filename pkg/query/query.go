// Package query defines the immutable query values the client core and its
// engines exchange.
//
// A Query is a plain value: builder methods return modified copies, so a
// query handed to a listener registration can never change underneath it.
// Two queries with identical terms are the same listening target, which the
// listener registry detects through [Query.CanonicalID].
package query

import (
	"fmt"
	"strings"

	"github.com/quilldb/quill.go/pkg/constants"
	"github.com/quilldb/quill.go/pkg/models"
)

// Direction orders a field ascending or descending.
type Direction uint8

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Operator is a filter comparison operator.
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
)

// Filter is one field comparison term.
type Filter struct {
	Path  string
	Op    Operator
	Value any
}

// Order is one ordering term.
type Order struct {
	Path      string
	Direction Direction
}

// Query identifies a collection plus filter, order and limit terms, or a
// single document by its key.
type Query struct {
	// Collection is the slash-separated collection path the query ranges
	// over. Empty when Doc is set.
	Collection string

	// Doc, when non-zero, makes this a single-document query.
	Doc models.DocumentKey

	Filters []Filter
	Orders  []Order

	// Limit keeps the first N results; LimitToLast keeps the last N.
	// At most one of the two is set.
	Limit       int
	LimitToLast int
}

// ForCollection returns a query over all documents of a collection.
func ForCollection(path string) Query {
	return Query{Collection: path}
}

// ForDocument returns a query targeting exactly one document.
func ForDocument(key models.DocumentKey) Query {
	return Query{Doc: key}
}

// IsDocumentQuery reports whether the query targets a single document.
func (q Query) IsDocumentQuery() bool {
	return !q.Doc.IsZero()
}

// Where returns a copy of the query with an additional filter term.
func (q Query) Where(path string, op Operator, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Path: path, Op: op, Value: value})
	return q
}

// OrderBy returns a copy of the query with an additional order term.
func (q Query) OrderBy(path string, dir Direction) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Path: path, Direction: dir})
	return q
}

// WithLimit returns a copy keeping only the first n results.
func (q Query) WithLimit(n int) Query {
	q.Limit = n
	q.LimitToLast = 0
	return q
}

// WithLimitToLast returns a copy keeping only the last n results. The query
// must carry an explicit order term by the time it is executed or listened
// to; see Validate.
func (q Query) WithLimitToLast(n int) Query {
	q.LimitToLast = n
	q.Limit = 0
	return q
}

// Validate checks the query before any cache or network access. A
// limit-to-last query without an explicit order term has no defined "last"
// and is rejected here, synchronously, rather than by the backend.
func (q Query) Validate() error {
	if q.LimitToLast > 0 && len(q.Orders) == 0 {
		return fmt.Errorf("%w: add an order term to define which results are last", constants.ErrMissingOrder)
	}
	return nil
}

// CanonicalID returns a stable identifier for the query's terms. Queries
// with equal canonical IDs are the same listening target and share one
// underlying subscription.
func (q Query) CanonicalID() string {
	var b strings.Builder

	if q.IsDocumentQuery() {
		b.WriteString("doc:")
		b.WriteString(q.Doc.Path())
	} else {
		b.WriteString("col:")
		b.WriteString(q.Collection)
	}

	for _, f := range q.Filters {
		// The value's dynamic type is part of the term: int 30 and string
		// "30" match different documents and must not share a target.
		fmt.Fprintf(&b, "|f:%s%s%T:%v", f.Path, f.Op, f.Value, f.Value)
	}
	for _, o := range q.Orders {
		fmt.Fprintf(&b, "|o:%s %s", o.Path, o.Direction)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, "|l:%d", q.Limit)
	}
	if q.LimitToLast > 0 {
		fmt.Fprintf(&b, "|ll:%d", q.LimitToLast)
	}

	return b.String()
}

func (q Query) String() string {
	return q.CanonicalID()
}
