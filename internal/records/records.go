// Package records provides the ordered, typed record sets flowing through the
// export pipeline. A Set is a header (ordered column names) plus positional
// rows of nullable values, and every pipeline stage preserves its row count
// and row order.
package records

import (
	"fmt"
	"strconv"
	"time"
)

// Kind identifies the type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindInt
	KindTime
)

// Value is a nullable cell value. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	i64  int64
	t    time.Time
}

// Null returns the null value.
func Null() Value {
	return Value{}
}

// String returns a string value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number returns a float64 value.
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// Int returns an int64 value.
func Int(i int64) Value {
	return Value{kind: KindInt, i64: i}
}

// Time returns a timestamp value.
func Time(t time.Time) Value {
	return Value{kind: KindTime, t: t}
}

// Kind reports the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload. Only meaningful for KindString.
func (v Value) Str() string { return v.str }

// Num returns the numeric payload. Only meaningful for KindNumber.
func (v Value) Num() float64 { return v.num }

// I64 returns the integer payload. Only meaningful for KindInt.
func (v Value) I64() int64 { return v.i64 }

// Timestamp returns the time payload. Only meaningful for KindTime.
func (v Value) Timestamp() time.Time { return v.t }

// Render formats the value as export text. Null renders as the empty string;
// timestamps use the supplied layout.
func (v Value) Render(timeLayout string) string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindInt:
		return strconv.FormatInt(v.i64, 10)
	case KindTime:
		return v.t.Format(timeLayout)
	default:
		return ""
	}
}

// Row is one positional record; len(Row) always equals len(Set.Columns).
type Row []Value

// Set is an ordered collection of rows sharing one column list.
type Set struct {
	Columns []string
	Rows    []Row
}

// NewSet creates an empty set with the given column order.
func NewSet(columns ...string) *Set {
	return &Set{Columns: append([]string(nil), columns...)}
}

// NumRows returns the number of rows.
func (s *Set) NumRows() int { return len(s.Rows) }

// ColumnIndex returns the position of the named column, or -1 if absent.
// Column names are case-sensitive.
func (s *Set) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Append adds a row, enforcing the column width.
func (s *Set) Append(row Row) error {
	if len(row) != len(s.Columns) {
		return fmt.Errorf("row has %d fields, set has %d columns", len(row), len(s.Columns))
	}
	s.Rows = append(s.Rows, row)
	return nil
}

// AddColumn appends a column whose value for each existing row is computed by
// fill. A nil fill leaves every new cell null.
func (s *Set) AddColumn(name string, fill func(Row) Value) {
	s.Columns = append(s.Columns, name)
	for i, row := range s.Rows {
		v := Null()
		if fill != nil {
			v = fill(row)
		}
		s.Rows[i] = append(row, v)
	}
}

// Clone returns a deep copy of the set.
func (s *Set) Clone() *Set {
	out := NewSet(s.Columns...)
	out.Rows = make([]Row, len(s.Rows))
	for i, row := range s.Rows {
		out.Rows[i] = append(Row(nil), row...)
	}
	return out
}
