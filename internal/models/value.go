package models

import (
	"strconv"
	"time"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindTimestamp
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindTimestamp:
		return "timestamp"
	default:
		return "null"
	}
}

// Value is a typed, warehouse-ready scalar.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	Time time.Time
}

func Null() Value { return Value{Kind: KindNull} }

func String(s string) Value { return Value{Kind: KindString, Str: s} }

func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

func Timestamp(t time.Time) Value { return Value{Kind: KindTimestamp, Time: t.UTC()} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// SQLArg returns the value in a form the SQL driver accepts. Null becomes nil.
func (v Value) SQLArg() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindTimestamp:
		return v.Time
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindTimestamp:
		return v.Time.Format(time.RFC3339Nano)
	default:
		return "NULL"
	}
}

// Row is a transformed record keyed by sanitized column name.
// The id column is carried separately in ID and never appears in Values.
type Row struct {
	ID     string
	Values map[string]Value
}

// Get returns the value for column, or Null when absent.
func (r Row) Get(column string) Value {
	if column == IDColumn {
		if r.ID == "" {
			return Null()
		}
		return String(r.ID)
	}
	if v, ok := r.Values[column]; ok {
		return v
	}
	return Null()
}
