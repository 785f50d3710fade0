package kfx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// Value tag byte: high nibble is the type, low nibble the length. A length
// nibble of lenVarUInt means a VarUInt length follows the tag.
const (
	tagNull    = 0x0
	tagBool    = 0x1
	tagPosInt  = 0x2
	tagNegInt  = 0x3
	tagFloat   = 0x4
	tagDecimal = 0x5
	tagSymbol  = 0x7
	tagString  = 0x8
	tagRef     = 0x9
	tagBlob    = 0xA
	tagList    = 0xB
	tagStruct  = 0xD

	lenVarUInt = 0xE
)

var errShortValue = errors.New("value extends past end of payload")

// valueDecoder reads one payload. Offsets in errors are relative to the start
// of the (decompressed) payload.
type valueDecoder struct {
	buf      []byte
	pos      int
	syms     *SymbolTable
	maxDepth int
}

// decodePayload decodes a payload that must hold exactly one value.
func decodePayload(buf []byte, syms *SymbolTable, maxDepth int) (Value, error) {
	d := &valueDecoder{buf: buf, syms: syms, maxDepth: maxDepth}
	v, err := d.value(0)
	if err != nil {
		return Value{}, err
	}
	if d.pos != len(buf) {
		return Value{}, fmt.Errorf("%w: %d trailing bytes after value", ErrInvalidPayload, len(buf)-d.pos)
	}
	return v, nil
}

func (d *valueDecoder) invalid(format string, args ...any) error {
	return fmt.Errorf("%w: payload offset %d: %s", ErrInvalidPayload, d.pos, fmt.Sprintf(format, args...))
}

func (d *valueDecoder) varUInt() (uint64, error) {
	var n uint64
	for i := 0; ; i++ {
		if d.pos >= len(d.buf) {
			return 0, d.invalid("%v", errShortValue)
		}
		if i >= 10 {
			return 0, d.invalid("VarUInt too long")
		}
		b := d.buf[d.pos]
		d.pos++
		if n > math.MaxUint64>>7 {
			return 0, d.invalid("VarUInt overflows")
		}
		n = n<<7 | uint64(b&0x7F)
		if b&0x80 != 0 {
			return n, nil
		}
	}
}

func (d *valueDecoder) varInt() (int64, error) {
	if d.pos >= len(d.buf) {
		return 0, d.invalid("%v", errShortValue)
	}
	b := d.buf[d.pos]
	d.pos++
	neg := b&0x40 != 0
	mag := uint64(b & 0x3F)
	end := b&0x80 != 0
	for i := 0; !end; i++ {
		if d.pos >= len(d.buf) {
			return 0, d.invalid("%v", errShortValue)
		}
		if i >= 9 || mag > math.MaxInt64>>7 {
			return 0, d.invalid("VarInt overflows")
		}
		b = d.buf[d.pos]
		d.pos++
		mag = mag<<7 | uint64(b&0x7F)
		end = b&0x80 != 0
	}
	if mag > math.MaxInt64 {
		return 0, d.invalid("VarInt overflows")
	}
	if neg {
		return -int64(mag), nil
	}
	return int64(mag), nil
}

func (d *valueDecoder) take(n uint64) ([]byte, error) {
	if n > uint64(len(d.buf)-d.pos) {
		return nil, d.invalid("length %d: %v", n, errShortValue)
	}
	b := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return b, nil
}

func (d *valueDecoder) symbol(id uint64) (string, error) {
	if id > math.MaxUint32 {
		return "", fmt.Errorf("%w: id %d", ErrSymbolOutOfRange, id)
	}
	name, ok := d.syms.Name(uint32(id))
	if !ok {
		return "", fmt.Errorf("%w: id %d (table length %d)", ErrSymbolOutOfRange, id, d.syms.Len())
	}
	return name, nil
}

func beUint(b []byte) (uint64, bool) {
	if len(b) > 8 {
		return 0, false
	}
	var n uint64
	for _, c := range b {
		n = n<<8 | uint64(c)
	}
	return n, true
}

func (d *valueDecoder) value(depth int) (Value, error) {
	if depth > d.maxDepth {
		return Value{}, fmt.Errorf("%w: value nesting deeper than %d", ErrLimitExceeded, d.maxDepth)
	}
	if d.pos >= len(d.buf) {
		return Value{}, d.invalid("%v", errShortValue)
	}
	tag := d.buf[d.pos]
	d.pos++
	typ, l := tag>>4, uint64(tag&0x0F)
	if l == lenVarUInt {
		n, err := d.varUInt()
		if err != nil {
			return Value{}, err
		}
		l = n
	} else if l == 0xF {
		return Value{}, d.invalid("reserved length nibble in tag 0x%02x", tag)
	}
	body, err := d.take(l)
	if err != nil {
		return Value{}, err
	}

	switch typ {
	case tagNull:
		if l != 0 {
			return Value{}, d.invalid("null with length %d", l)
		}
		return Null(), nil
	case tagBool:
		if l > 1 {
			return Value{}, d.invalid("bool with length %d", l)
		}
		return Bool(l == 1), nil
	case tagPosInt, tagNegInt:
		mag, ok := beUint(body)
		if !ok {
			return Value{}, d.invalid("int wider than 64 bits")
		}
		if typ == tagPosInt {
			if mag > math.MaxInt64 {
				return Value{}, d.invalid("int overflows int64")
			}
			return Int(int64(mag)), nil
		}
		if mag == 0 {
			return Value{}, d.invalid("negative zero int")
		}
		if mag > 1<<63 {
			return Value{}, d.invalid("int overflows int64")
		}
		return Int(int64(-mag)), nil
	case tagFloat:
		switch l {
		case 0:
			return Float(0), nil
		case 8:
			return Float(math.Float64frombits(binary.BigEndian.Uint64(body))), nil
		}
		return Value{}, d.invalid("float with length %d", l)
	case tagDecimal:
		if l == 0 {
			return Decimal(0, 0), nil
		}
		sub := &valueDecoder{buf: body, syms: d.syms}
		exp, err := sub.varInt()
		if err != nil {
			return Value{}, err
		}
		if exp < math.MinInt32 || exp > math.MaxInt32 {
			return Value{}, d.invalid("decimal exponent out of range")
		}
		coef := int64(0)
		if sub.pos < len(body) {
			if coef, err = sub.varInt(); err != nil {
				return Value{}, err
			}
		}
		if sub.pos != len(body) {
			return Value{}, d.invalid("trailing bytes in decimal")
		}
		return Decimal(coef, int32(exp)), nil
	case tagSymbol, tagRef:
		id, ok := beUint(body)
		if !ok {
			return Value{}, d.invalid("symbol id wider than 64 bits")
		}
		name, err := d.symbol(id)
		if err != nil {
			return Value{}, err
		}
		if typ == tagRef {
			return Ref(name), nil
		}
		return Symbol(name), nil
	case tagString:
		if !utf8.Valid(body) {
			return Value{}, d.invalid("string is not valid UTF-8")
		}
		return String(string(body)), nil
	case tagBlob:
		return Blob(body), nil
	case tagList:
		sub := &valueDecoder{buf: body, syms: d.syms, maxDepth: d.maxDepth}
		var items []Value
		for sub.pos < len(body) {
			item, err := sub.value(depth + 1)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return List(items...), nil
	case tagStruct:
		sub := &valueDecoder{buf: body, syms: d.syms, maxDepth: d.maxDepth}
		var fields []Field
		for sub.pos < len(body) {
			id, err := sub.varUInt()
			if err != nil {
				return Value{}, err
			}
			name, err := sub.symbol(id)
			if err != nil {
				return Value{}, err
			}
			fv, err := sub.value(depth + 1)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, F(name, fv))
		}
		return Struct(fields...), nil
	}
	return Value{}, d.invalid("invalid type nibble 0x%x", typ)
}

// appendVarUInt appends n as 7-bit groups, most significant first, with the
// high bit set on the final byte.
func appendVarUInt(dst []byte, n uint64) []byte {
	var tmp [10]byte
	i := len(tmp) - 1
	tmp[i] = byte(n&0x7F) | 0x80
	for n >>= 7; n > 0; n >>= 7 {
		i--
		tmp[i] = byte(n & 0x7F)
	}
	return append(dst, tmp[i:]...)
}

// appendVarInt appends n with the sign in bit 6 of the first byte.
func appendVarInt(dst []byte, n int64) []byte {
	neg := n < 0
	mag := uint64(n)
	if neg {
		mag = uint64(-n)
	}
	// groups after the first carry 7 bits; the first carries 6
	var groups []byte
	for mag > 0x3F {
		groups = append(groups, byte(mag&0x7F))
		mag >>= 7
	}
	first := byte(mag)
	if neg {
		first |= 0x40
	}
	if len(groups) == 0 {
		return append(dst, first|0x80)
	}
	dst = append(dst, first)
	for i := len(groups) - 1; i >= 0; i-- {
		b := groups[i]
		if i == 0 {
			b |= 0x80
		}
		dst = append(dst, b)
	}
	return dst
}

func appendBEUint(dst []byte, n uint64) []byte {
	if n == 0 {
		return dst
	}
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], n)
	i := 0
	for tmp[i] == 0 {
		i++
	}
	return append(dst, tmp[i:]...)
}

func appendTag(dst []byte, typ byte, length int) []byte {
	if length < lenVarUInt {
		return append(dst, typ<<4|byte(length))
	}
	dst = append(dst, typ<<4|lenVarUInt)
	return appendVarUInt(dst, uint64(length))
}

// encodeValue appends the wire form of v, interning symbol names with in.
func encodeValue(dst []byte, v Value, in *interner) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(dst, tagNull<<4), nil
	case KindBool:
		if v.b {
			return append(dst, tagBool<<4|1), nil
		}
		return append(dst, tagBool<<4), nil
	case KindInt:
		if v.i < 0 {
			mag := appendBEUint(nil, uint64(-v.i))
			return append(appendTag(dst, tagNegInt, len(mag)), mag...), nil
		}
		mag := appendBEUint(nil, uint64(v.i))
		return append(appendTag(dst, tagPosInt, len(mag)), mag...), nil
	case KindFloat:
		if v.f == 0 && !math.Signbit(v.f) {
			return append(dst, tagFloat<<4), nil
		}
		dst = append(dst, tagFloat<<4|8)
		return binary.BigEndian.AppendUint64(dst, math.Float64bits(v.f)), nil
	case KindDecimal:
		if v.i == 0 && v.exp == 0 {
			return append(dst, tagDecimal<<4), nil
		}
		body := appendVarInt(nil, int64(v.exp))
		body = appendVarInt(body, v.i)
		return append(appendTag(dst, tagDecimal, len(body)), body...), nil
	case KindString:
		if !utf8.ValidString(v.s) {
			return nil, fmt.Errorf("%w: string is not valid UTF-8", ErrValidation)
		}
		return append(appendTag(dst, tagString, len(v.s)), v.s...), nil
	case KindSymbol, KindRef:
		typ := byte(tagSymbol)
		if v.kind == KindRef {
			typ = tagRef
		}
		id := appendBEUint(nil, uint64(in.intern(v.s)))
		return append(appendTag(dst, typ, len(id)), id...), nil
	case KindBlob:
		return append(appendTag(dst, tagBlob, len(v.blob)), v.blob...), nil
	case KindList:
		var body []byte
		var err error
		for _, item := range v.list {
			if body, err = encodeValue(body, item, in); err != nil {
				return nil, err
			}
		}
		return append(appendTag(dst, tagList, len(body)), body...), nil
	case KindStruct:
		var body []byte
		var err error
		for _, f := range v.fields {
			body = appendVarUInt(body, uint64(in.intern(f.Name)))
			if body, err = encodeValue(body, f.Value, in); err != nil {
				return nil, err
			}
		}
		return append(appendTag(dst, tagStruct, len(body)), body...), nil
	}
	return nil, fmt.Errorf("%w: cannot encode value of %s", ErrValidation, v.kind)
}

// encodePayload returns the wire form of a single value.
func encodePayload(v Value, in *interner) ([]byte, error) {
	return encodeValue(nil, v, in)
}
