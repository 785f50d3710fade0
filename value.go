package kfx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind is the type tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindDecimal
	KindString
	KindSymbol
	KindRef
	KindBlob
	KindList
	KindStruct
)

var kindNames = [...]string{
	KindNull:    "null",
	KindBool:    "bool",
	KindInt:     "int",
	KindFloat:   "float",
	KindDecimal: "decimal",
	KindString:  "string",
	KindSymbol:  "symbol",
	KindRef:     "ref",
	KindBlob:    "blob",
	KindList:    "list",
	KindStruct:  "struct",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a decoded fragment payload. The zero Value is null.
//
// Symbol and ref values hold resolved names rather than ids, so values from
// different container parts can be compared and merged directly.
type Value struct {
	kind   Kind
	b      bool
	i      int64 // int, or decimal coefficient
	exp    int32 // decimal exponent
	f      float64
	s      string // string, symbol name, or referenced fragment id
	blob   []byte
	list   []Value
	fields []Field
}

// Field is one named member of a struct value.
type Field struct {
	Name  string
	Value Value
}

func Null() Value                  { return Value{} }
func Bool(b bool) Value            { return Value{kind: KindBool, b: b} }
func Int(i int64) Value            { return Value{kind: KindInt, i: i} }
func Float(f float64) Value        { return Value{kind: KindFloat, f: f} }
func String(s string) Value        { return Value{kind: KindString, s: s} }
func Symbol(name string) Value     { return Value{kind: KindSymbol, s: name} }
func Ref(id string) Value          { return Value{kind: KindRef, s: id} }
func Blob(b []byte) Value          { return Value{kind: KindBlob, blob: b} }
func List(items ...Value) Value    { return Value{kind: KindList, list: items} }
func Struct(fields ...Field) Value { return Value{kind: KindStruct, fields: fields} }
func F(name string, v Value) Field { return Field{Name: name, Value: v} }

// Decimal returns coefficient × 10^exponent.
func Decimal(coefficient int64, exponent int32) Value {
	return Value{kind: KindDecimal, i: coefficient, exp: exponent}
}

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNull() bool  { return v.kind == KindNull }
func (v Value) IsValid() bool { return v.kind != KindNull }

func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// Int returns integer values, and decimals and floats that are whole numbers.
func (v Value) Int() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindDecimal, KindFloat:
		f, _ := v.Number()
		if f == math.Trunc(f) && math.Abs(f) < 1<<62 {
			return int64(f), true
		}
	}
	return 0, false
}

// Number returns any numeric value as a float64.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindDecimal:
		return float64(v.i) * math.Pow10(int(v.exp)), true
	}
	return 0, false
}

// DecimalParts returns the coefficient and exponent of a decimal.
func (v Value) DecimalParts() (coefficient int64, exponent int32, ok bool) {
	return v.i, v.exp, v.kind == KindDecimal
}

func (v Value) Str() (string, bool) {
	return v.s, v.kind == KindString
}

func (v Value) Sym() (string, bool) {
	return v.s, v.kind == KindSymbol
}

func (v Value) RefID() (string, bool) {
	return v.s, v.kind == KindRef
}

// Text returns the name or text of a string, symbol or ref, and "" for
// anything else.
func (v Value) Text() string {
	switch v.kind {
	case KindString, KindSymbol, KindRef:
		return v.s
	}
	return ""
}

func (v Value) Blob() ([]byte, bool) {
	return v.blob, v.kind == KindBlob
}

// List returns the items of a list, or nil.
func (v Value) List() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.list
}

// Fields returns the fields of a struct in wire order, or nil.
func (v Value) Fields() []Field {
	if v.kind != KindStruct {
		return nil
	}
	return v.fields
}

// Field returns the first field called name.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindStruct {
		return Value{}, false
	}
	for _, f := range v.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Get is Field without the presence flag; a missing field is null.
func (v Value) Get(name string) Value {
	f, _ := v.Field(name)
	return f
}

// Len returns the number of list items, struct fields, blob bytes or string
// bytes.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindStruct:
		return len(v.fields)
	case KindBlob:
		return len(v.blob)
	case KindString, KindSymbol, KindRef:
		return len(v.s)
	}
	return 0
}

func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%s: %v>", v.kind, err)
	}
	return string(b)
}

// MarshalJSON renders v as JSON with struct fields in wire order. Symbols,
// refs and blobs become single-key objects ({"$symbol": ...}, {"$ref": ...},
// {"$blob_size": n}); decimals are written as exact JSON numbers.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.appendJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) appendJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			writeJSONString(buf, strconv.FormatFloat(v.f, 'g', -1, 64))
			return nil
		}
		buf.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindDecimal:
		buf.WriteString(strconv.FormatInt(v.i, 10))
		if v.exp != 0 {
			buf.WriteString("e")
			buf.WriteString(strconv.FormatInt(int64(v.exp), 10))
		}
	case KindString:
		writeJSONString(buf, v.s)
	case KindSymbol:
		buf.WriteString(`{"$symbol":`)
		writeJSONString(buf, v.s)
		buf.WriteByte('}')
	case KindRef:
		buf.WriteString(`{"$ref":`)
		writeJSONString(buf, v.s)
		buf.WriteByte('}')
	case KindBlob:
		buf.WriteString(`{"$blob_size":`)
		buf.WriteString(strconv.Itoa(len(v.blob)))
		buf.WriteByte('}')
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.appendJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindStruct:
		buf.WriteByte('{')
		for i, f := range v.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, f.Name)
			buf.WriteByte(':')
			if err := f.Value.appendJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("kfx: cannot marshal value of %s", v.kind)
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// Equal reports whether v and o have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindDecimal:
		return v.i == o.i && v.exp == o.exp
	case KindString, KindSymbol, KindRef:
		return v.s == o.s
	case KindBlob:
		return bytes.Equal(v.blob, o.blob)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindStruct:
		if len(v.fields) != len(o.fields) {
			return false
		}
		for i := range v.fields {
			if v.fields[i].Name != o.fields[i].Name || !v.fields[i].Value.Equal(o.fields[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}
