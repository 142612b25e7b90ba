package query

import (
	"sort"
	"strings"

	"github.com/quilldb/quill.go/pkg/models"
)

// Matches reports whether a document belongs to the query's result set.
// Documents are matched on their decoded field maps; a filter on a missing
// field never matches.
func (q Query) Matches(doc models.Document) (bool, error) {
	if q.IsDocumentQuery() {
		return doc.Key == q.Doc, nil
	}
	if doc.Key.Collection != q.Collection {
		return false, nil
	}

	if len(q.Filters) == 0 {
		return true, nil
	}

	fields, err := doc.Fields()
	if err != nil {
		return false, err
	}

	for _, f := range q.Filters {
		value, ok := models.LookupField(fields, f.Path)
		if !ok {
			return false, nil
		}
		cmp, comparable := CompareValues(value, f.Value)
		if !comparable {
			return false, nil
		}
		if !opHolds(f.Op, cmp) {
			return false, nil
		}
	}
	return true, nil
}

func opHolds(op Operator, cmp int) bool {
	switch op {
	case OpEqual:
		return cmp == 0
	case OpNotEqual:
		return cmp != 0
	case OpLess:
		return cmp < 0
	case OpLessEqual:
		return cmp <= 0
	case OpGreater:
		return cmp > 0
	case OpGreaterEqual:
		return cmp >= 0
	default:
		return false
	}
}

// Evaluate filters, orders and limits the given documents per the query's
// terms. The input is not mutated. Results come back in query order; for a
// limit-to-last query that means the last N of the ordered result set, still
// in ascending query order.
func (q Query) Evaluate(docs []models.Document) ([]models.Document, error) {
	var matched []models.Document
	for _, doc := range docs {
		ok, err := q.Matches(doc)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, doc)
		}
	}

	if err := q.sortDocs(matched); err != nil {
		return nil, err
	}

	switch {
	case q.Limit > 0 && len(matched) > q.Limit:
		matched = matched[:q.Limit]
	case q.LimitToLast > 0 && len(matched) > q.LimitToLast:
		matched = matched[len(matched)-q.LimitToLast:]
	}

	return matched, nil
}

func (q Query) sortDocs(docs []models.Document) error {
	if len(docs) < 2 {
		return nil
	}

	fieldCache := make(map[string]map[string]any, len(docs))
	fieldsOf := func(doc models.Document) (map[string]any, error) {
		if f, ok := fieldCache[doc.Key.Path()]; ok {
			return f, nil
		}
		f, err := doc.Fields()
		if err != nil {
			return nil, err
		}
		fieldCache[doc.Key.Path()] = f
		return f, nil
	}

	var sortErr error
	sort.SliceStable(docs, func(i, j int) bool {
		a, err := fieldsOf(docs[i])
		if err != nil {
			sortErr = err
			return false
		}
		b, err := fieldsOf(docs[j])
		if err != nil {
			sortErr = err
			return false
		}

		for _, o := range q.Orders {
			av, _ := models.LookupField(a, o.Path)
			bv, _ := models.LookupField(b, o.Path)
			cmp, _ := CompareValues(av, bv)
			if cmp != 0 {
				if o.Direction == Descending {
					return cmp > 0
				}
				return cmp < 0
			}
		}
		// Key path is the final tiebreak so ordering is total.
		return strings.Compare(docs[i].Key.Path(), docs[j].Key.Path()) < 0
	})
	return sortErr
}

// CompareValues orders two decoded field values. The second result is false
// when the values are of incomparable types; mixed numeric widths compare
// numerically. Types rank nil < bool < number < string.
func CompareValues(a, b any) (int, bool) {
	ra, na := rank(a)
	rb, nb := rank(b)

	if ra == rankOther || rb == rankOther {
		return 0, false
	}
	if ra != rb {
		// Values of different types order by type rank, so mixed-type
		// fields still sort deterministically.
		return compareInts(int64(ra), int64(rb)), true
	}

	switch ra {
	case rankNil:
		return 0, true
	case rankBool:
		av, bv := a.(bool), b.(bool)
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	case rankNumber:
		return compareFloats(na, nb), true
	default:
		return strings.Compare(toString(a), toString(b)), true
	}
}

type valueRank uint8

const (
	rankNil valueRank = iota
	rankBool
	rankNumber
	rankString
	rankOther
)

func rank(v any) (valueRank, float64) {
	switch n := v.(type) {
	case nil:
		return rankNil, 0
	case bool:
		return rankBool, 0
	case int:
		return rankNumber, float64(n)
	case int8:
		return rankNumber, float64(n)
	case int16:
		return rankNumber, float64(n)
	case int32:
		return rankNumber, float64(n)
	case int64:
		return rankNumber, float64(n)
	case uint:
		return rankNumber, float64(n)
	case uint8:
		return rankNumber, float64(n)
	case uint16:
		return rankNumber, float64(n)
	case uint32:
		return rankNumber, float64(n)
	case uint64:
		return rankNumber, float64(n)
	case float32:
		return rankNumber, float64(n)
	case float64:
		return rankNumber, n
	case string:
		return rankString, 0
	default:
		return rankOther, 0
	}
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func compareInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
