// Package options carries per-operation hints from callers through the
// record layer into storage adapters. The core never interprets these
// values; adapters honor what they understand and ignore the rest.
package options

type Order string

const (
	Ascend  Order = "ASC"
	Descend Order = "DESC"
)

type KeyRange struct {
	From, To string
}

// Where is an equality condition over a path inside the raw stored
// payload. Path syntax is adapter-specific; the bundled memory store
// resolves gjson paths.
type Where struct {
	Path  string
	Value interface{}
}

// Query shapes a multi-record read.
type Query struct {
	O        Order
	Px       string
	KR       *KeyRange
	Patterns []string
	Wh       []Where
	Max      int
}

func Q() *Query {
	return &Query{O: Ascend}
}

func (q *Query) Order(o Order) *Query {
	q.O = o
	return q
}

func (q *Query) Prefix(p string) *Query {
	q.Px = p
	return q
}

func (q *Query) KeyRange(from, to string) *Query {
	q.KR = &KeyRange{From: from, To: to}
	return q
}

// Match filters by segmented key patterns, e.g. "user", "*".
func (q *Query) Match(patterns ...string) *Query {
	q.Patterns = append(q.Patterns, patterns...)
	return q
}

func (q *Query) WhereEq(path string, v interface{}) *Query {
	q.Wh = append(q.Wh, Where{Path: path, Value: v})
	return q
}

func (q *Query) Limit(n int) *Query {
	q.Max = n
	return q
}

// Read shapes a single-record read.
type Read struct {
	Meta map[string]interface{}
}

func R() *Read {
	return &Read{}
}

func (r *Read) With(k string, v interface{}) *Read {
	if r.Meta == nil {
		r.Meta = make(map[string]interface{})
	}
	r.Meta[k] = v
	return r
}

// Write shapes a create, update or destroy.
type Write struct {
	Meta map[string]interface{}
}

func W() *Write {
	return &Write{}
}

func (w *Write) With(k string, v interface{}) *Write {
	if w.Meta == nil {
		w.Meta = make(map[string]interface{})
	}
	w.Meta[k] = v
	return w
}
