package cms

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Operator is a CMS filter operator.
type Operator string

const (
	OpEq        Operator = "$eq"
	OpNe        Operator = "$ne"
	OpGte       Operator = "$gte"
	OpLte       Operator = "$lte"
	OpContainsi Operator = "$containsi"
	OpNull      Operator = "$null"
)

// TimeLayout is the UTC timestamp format the CMS stores and accepts in
// filters.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Query builds the bracketed query-string syntax understood by the CMS
// (filters[field][op]=value, populate, fields, sort, pagination).
type Query struct {
	values    url.Values
	populates int
	fields    int
}

// NewQuery returns an empty query.
func NewQuery() *Query {
	return &Query{values: url.Values{}}
}

// Filter adds filters[a][b][op]=value for the dotted field path "a.b".
func (q *Query) Filter(field string, op Operator, value any) *Query {
	q.values.Set("filters"+bracket(field)+"["+string(op)+"]", formatValue(value))
	return q
}

// AndFilter adds filters[$and][i][a][b][op]=value.
func (q *Query) AndFilter(index int, field string, op Operator, value any) *Query {
	key := fmt.Sprintf("filters[$and][%d]%s[%s]", index, bracket(field), op)
	q.values.Set(key, formatValue(value))
	return q
}

// Populate requests the given relations (populate[i]=relation).
func (q *Query) Populate(relations ...string) *Query {
	for _, r := range relations {
		q.values.Set(fmt.Sprintf("populate[%d]", q.populates), r)
		q.populates++
	}
	return q
}

// PopulateAll requests every first-level relation (populate=*).
func (q *Query) PopulateAll() *Query {
	q.values.Set("populate", "*")
	return q
}

// PopulateFields requests selected fields of one relation
// (populate[relation][fields][i]=field).
func (q *Query) PopulateFields(relation string, fields ...string) *Query {
	for i, f := range fields {
		q.values.Set(fmt.Sprintf("populate[%s][fields][%d]", relation, i), f)
	}
	return q
}

// Fields restricts the returned scalar fields (fields[i]=field).
func (q *Query) Fields(fields ...string) *Query {
	for _, f := range fields {
		q.values.Set(fmt.Sprintf("fields[%d]", q.fields), f)
		q.fields++
	}
	return q
}

// Sort orders results by field.
func (q *Query) Sort(field string, desc bool) *Query {
	dir := "asc"
	if desc {
		dir = "desc"
	}
	q.values.Set("sort", field+":"+dir)
	return q
}

// PageSize sets pagination[pageSize].
func (q *Query) PageSize(n int) *Query {
	q.values.Set("pagination[pageSize]", strconv.Itoa(n))
	return q
}

// Page sets pagination[page] (1-based).
func (q *Query) Page(n int) *Query {
	q.values.Set("pagination[page]", strconv.Itoa(n))
	return q
}

// Set sets an arbitrary parameter.
func (q *Query) Set(key, value string) *Query {
	q.values.Set(key, value)
	return q
}

// Values returns a copy of the underlying parameters.
func (q *Query) Values() url.Values {
	out := make(url.Values, len(q.values))
	for k, v := range q.values {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Encode returns the URL-encoded query string.
func (q *Query) Encode() string {
	if q == nil {
		return ""
	}
	return q.values.Encode()
}

// bracket turns "a.b" into "[a][b]".
func bracket(field string) string {
	var b strings.Builder
	for _, part := range strings.Split(field, ".") {
		b.WriteString("[")
		b.WriteString(part)
		b.WriteString("]")
	}
	return b.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.UTC().Truncate(time.Second).Format(TimeLayout)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
