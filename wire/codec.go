package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
)

// Encode serializes v under sig into a freshly allocated big-endian
// buffer. v must have the shape sig describes: a struct (exported fields
// taken in declaration order) for a multi-field signature, or the direct
// value (a slice for a vector, a struct for a group) for a single-field
// one. Integer/float fields must match the wire width's natural Go type
// exactly (uint8 for u1, int32 for i4, float64 for f, and so on).
func Encode(sig Signature, v any) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, sig.Sizeof()))
	if err := encodeTuple(buf, sig, reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses data under sig into *out, returning the number of bytes
// consumed. out must be a pointer whose pointee has the shape sig
// describes, per the same rules as Encode. Returns ErrTruncated if data
// is shorter than sig requires.
func Decode(sig Signature, data []byte, out any) (int, error) {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return 0, fmt.Errorf("%w: Decode requires a non-nil pointer", ErrShape)
	}
	return decodeTuple(data, sig, rv.Elem())
}

func encodeTuple(buf *bytes.Buffer, sig Signature, rv reflect.Value) error {
	rv = indirect(rv)
	if len(sig) == 1 {
		return encodeField(buf, sig[0], rv)
	}
	fields, err := exportedFields(rv, len(sig))
	if err != nil {
		return err
	}
	for i, f := range sig {
		if err := encodeField(buf, f, fields[i]); err != nil {
			return err
		}
	}
	return nil
}

func decodeTuple(data []byte, sig Signature, rv reflect.Value) (int, error) {
	rv = indirect(rv)
	if len(sig) == 1 {
		return decodeField(data, sig[0], rv)
	}
	fields, err := exportedFields(rv, len(sig))
	if err != nil {
		return 0, err
	}
	total := 0
	for i, f := range sig {
		n, err := decodeField(data[total:], f, fields[i])
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func indirect(rv reflect.Value) reflect.Value {
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	return rv
}

// exportedFields returns the struct's exported fields in declaration
// order, erroring if the count doesn't match want.
func exportedFields(rv reflect.Value, want int) ([]reflect.Value, error) {
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: expected a struct, got %s", ErrShape, rv.Kind())
	}
	t := rv.Type()
	var fields []reflect.Value
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).PkgPath != "" {
			continue // unexported
		}
		fields = append(fields, rv.Field(i))
	}
	if len(fields) != want {
		return nil, fmt.Errorf("%w: struct has %d exported fields, signature wants %d", ErrShape, len(fields), want)
	}
	return fields, nil
}

func encodeField(buf *bytes.Buffer, f Field, rv reflect.Value) error {
	rv = indirect(rv)
	switch f.Kind {
	case KindU1, KindU2, KindU4, KindU8:
		return encodeUint(buf, f.Kind, rv)
	case KindI1, KindI2, KindI4, KindI8:
		return encodeInt(buf, f.Kind, rv)
	case KindFloat64:
		if rv.Kind() != reflect.Float64 {
			return fmt.Errorf("%w: field f wants float64, got %s", ErrShape, rv.Kind())
		}
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(rv.Float()))
		buf.Write(b[:])
		return nil
	case KindVector:
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return fmt.Errorf("%w: vector field wants a slice, got %s", ErrShape, rv.Kind())
		}
		n := rv.Len()
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(n))
		buf.Write(b[:])
		for i := 0; i < n; i++ {
			if err := encodeField(buf, *f.Elem, rv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case KindGroup:
		return encodeTuple(buf, f.Group, rv)
	default:
		return fmt.Errorf("%w: unknown field kind", ErrSignSyntax)
	}
}

func decodeField(data []byte, f Field, rv reflect.Value) (int, error) {
	switch f.Kind {
	case KindU1, KindU2, KindU4, KindU8:
		return decodeUint(data, f.Kind, rv)
	case KindI1, KindI2, KindI4, KindI8:
		return decodeInt(data, f.Kind, rv)
	case KindFloat64:
		if len(data) < 8 {
			return 0, ErrTruncated
		}
		if rv.Kind() != reflect.Float64 {
			return 0, fmt.Errorf("%w: field f wants float64, got %s", ErrShape, rv.Kind())
		}
		rv.SetFloat(math.Float64frombits(binary.BigEndian.Uint64(data)))
		return 8, nil
	case KindVector:
		if len(data) < 4 {
			return 0, ErrTruncated
		}
		n := int(binary.BigEndian.Uint32(data))
		if rv.Kind() != reflect.Slice {
			return 0, fmt.Errorf("%w: vector field wants a slice, got %s", ErrShape, rv.Kind())
		}
		// The length prefix is untrusted: bound it against what could
		// possibly still be in data before allocating, so a malformed
		// or truncated input reports ErrTruncated instead of panicking
		// inside reflect.MakeSlice (every element consumes at least
		// minElemSize bytes, so more than that many elements can't fit
		// in what remains).
		minElemSize := f.Elem.fixedSize()
		if minElemSize < 1 {
			minElemSize = 1
		}
		if n > (len(data)-4)/minElemSize {
			return 0, ErrTruncated
		}
		elemType := rv.Type().Elem()
		slice := reflect.MakeSlice(rv.Type(), n, n)
		consumed := 4
		for i := 0; i < n; i++ {
			elem := reflect.New(elemType).Elem()
			m, err := decodeField(data[consumed:], *f.Elem, elem)
			if err != nil {
				return 0, err
			}
			slice.Index(i).Set(elem)
			consumed += m
		}
		rv.Set(slice)
		return consumed, nil
	case KindGroup:
		return decodeTuple(data, f.Group, rv)
	default:
		return 0, fmt.Errorf("%w: unknown field kind", ErrSignSyntax)
	}
}

func encodeUint(buf *bytes.Buffer, kind Kind, rv reflect.Value) error {
	var want reflect.Kind
	var width int
	switch kind {
	case KindU1:
		want, width = reflect.Uint8, 1
	case KindU2:
		want, width = reflect.Uint16, 2
	case KindU4:
		want, width = reflect.Uint32, 4
	case KindU8:
		want, width = reflect.Uint64, 8
	}
	if rv.Kind() != want {
		return fmt.Errorf("%w: field %s wants %s, got %s", ErrShape, kind, want, rv.Kind())
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], rv.Uint())
	buf.Write(b[8-width:])
	return nil
}

func decodeUint(data []byte, kind Kind, rv reflect.Value) (int, error) {
	var want reflect.Kind
	var width int
	switch kind {
	case KindU1:
		want, width = reflect.Uint8, 1
	case KindU2:
		want, width = reflect.Uint16, 2
	case KindU4:
		want, width = reflect.Uint32, 4
	case KindU8:
		want, width = reflect.Uint64, 8
	}
	if len(data) < width {
		return 0, ErrTruncated
	}
	if rv.Kind() != want {
		return 0, fmt.Errorf("%w: field %s wants %s, got %s", ErrShape, kind, want, rv.Kind())
	}
	var b [8]byte
	copy(b[8-width:], data[:width])
	rv.SetUint(binary.BigEndian.Uint64(b[:]))
	return width, nil
}

func encodeInt(buf *bytes.Buffer, kind Kind, rv reflect.Value) error {
	var want reflect.Kind
	var width int
	switch kind {
	case KindI1:
		want, width = reflect.Int8, 1
	case KindI2:
		want, width = reflect.Int16, 2
	case KindI4:
		want, width = reflect.Int32, 4
	case KindI8:
		want, width = reflect.Int64, 8
	}
	if rv.Kind() != want {
		return fmt.Errorf("%w: field %s wants %s, got %s", ErrShape, kind, want, rv.Kind())
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(rv.Int()))
	buf.Write(b[8-width:])
	return nil
}

func decodeInt(data []byte, kind Kind, rv reflect.Value) (int, error) {
	var want reflect.Kind
	var width int
	switch kind {
	case KindI1:
		want, width = reflect.Int8, 1
	case KindI2:
		want, width = reflect.Int16, 2
	case KindI4:
		want, width = reflect.Int32, 4
	case KindI8:
		want, width = reflect.Int64, 8
	}
	if len(data) < width {
		return 0, ErrTruncated
	}
	if rv.Kind() != want {
		return 0, fmt.Errorf("%w: field %s wants %s, got %s", ErrShape, kind, want, rv.Kind())
	}
	// Sign-extend by filling the high bytes from the sign bit of the
	// most-significant byte present, then overwriting with the real
	// bytes in their low-order position.
	var b [8]byte
	if data[0]&0x80 != 0 {
		for i := range b {
			b[i] = 0xff
		}
	}
	copy(b[8-width:], data[:width])
	rv.SetInt(int64(binary.BigEndian.Uint64(b[:])))
	return width, nil
}
