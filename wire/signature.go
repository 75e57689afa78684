package wire

import (
	"fmt"
	"strings"
)

// Kind identifies the shape of one signature field.
type Kind uint8

const (
	KindU1 Kind = iota
	KindU2
	KindU4
	KindU8
	KindI1
	KindI2
	KindI4
	KindI8
	KindFloat64
	KindVector
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindU1:
		return "u1"
	case KindU2:
		return "u2"
	case KindU4:
		return "u4"
	case KindU8:
		return "u8"
	case KindI1:
		return "i1"
	case KindI2:
		return "i2"
	case KindI4:
		return "i4"
	case KindI8:
		return "i8"
	case KindFloat64:
		return "f"
	case KindVector:
		return "v"
	case KindGroup:
		return "()"
	default:
		return "?"
	}
}

// Field is one element of a parsed Signature.
type Field struct {
	Kind  Kind
	Elem  *Field  // set iff Kind == KindVector: the element's field
	Group []Field // set iff Kind == KindGroup: the nested tuple
}

// fixedSize returns the field's fixed-width byte footprint: the full
// width for primitives, the 4-byte length prefix only for vectors (their
// element count is not known from the signature alone), and the sum of
// children for groups.
func (f Field) fixedSize() int {
	switch f.Kind {
	case KindU1, KindI1:
		return 1
	case KindU2, KindI2:
		return 2
	case KindU4, KindI4:
		return 4
	case KindU8, KindI8, KindFloat64:
		return 8
	case KindVector:
		return 4
	case KindGroup:
		n := 0
		for _, g := range f.Group {
			n += g.fixedSize()
		}
		return n
	default:
		return 0
	}
}

// Signature is a parsed tuple of top-level fields, e.g. "i2 u8 f u1" or
// "v(u1 u4)".
type Signature []Field

// Sizeof computes the signature's fixed-width footprint as a pure
// function of the signature string, independent of any encoded buffer:
// the sum of each field's fixedSize. Used to pre-size scratch buffers
// before Encode; for signatures containing vectors this is a lower
// bound, not the true encoded size.
func (s Signature) Sizeof() int {
	n := 0
	for _, f := range s {
		n += f.fixedSize()
	}
	return n
}

// ParseSignature parses a signature string into its field tuple.
// Whitespace separates top-level fields (and fields inside a group); it
// is otherwise insignificant. Returns ErrSignSyntax on malformed input.
func ParseSignature(s string) (Signature, error) {
	p := &sigParser{s: s}
	fields, err := p.parseTuple(0)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("%w: unexpected trailing input at offset %d", ErrSignSyntax, p.pos)
	}
	return fields, nil
}

type sigParser struct {
	s   string
	pos int
}

func (p *sigParser) skipSpace() {
	for p.pos < len(p.s) && p.s[p.pos] == ' ' {
		p.pos++
	}
}

// parseTuple parses fields until ')' (if depth > 0) or end of input.
func (p *sigParser) parseTuple(depth int) (Signature, error) {
	var fields Signature
	for {
		p.skipSpace()
		if p.pos >= len(p.s) {
			if depth > 0 {
				return nil, fmt.Errorf("%w: unterminated group", ErrSignSyntax)
			}
			return fields, nil
		}
		if p.s[p.pos] == ')' {
			if depth == 0 {
				return nil, fmt.Errorf("%w: unmatched ')' at offset %d", ErrSignSyntax, p.pos)
			}
			return fields, nil
		}
		f, err := p.parseField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
}

func (p *sigParser) parseField() (Field, error) {
	if p.pos >= len(p.s) {
		return Field{}, fmt.Errorf("%w: expected field at offset %d", ErrSignSyntax, p.pos)
	}
	switch p.s[p.pos] {
	case '(':
		p.pos++
		inner, err := p.parseTuple(1)
		if err != nil {
			return Field{}, err
		}
		p.skipSpace()
		if p.pos >= len(p.s) || p.s[p.pos] != ')' {
			return Field{}, fmt.Errorf("%w: expected ')' at offset %d", ErrSignSyntax, p.pos)
		}
		p.pos++
		return Field{Kind: KindGroup, Group: inner}, nil
	case 'v':
		p.pos++
		elem, err := p.parseField()
		if err != nil {
			return Field{}, err
		}
		return Field{Kind: KindVector, Elem: &elem}, nil
	case 'f':
		p.pos++
		return Field{Kind: KindFloat64}, nil
	case 'u', 'i':
		return p.parseSized()
	default:
		return Field{}, fmt.Errorf("%w: unexpected %q at offset %d", ErrSignSyntax, p.s[p.pos], p.pos)
	}
}

func (p *sigParser) parseSized() (Field, error) {
	signed := p.s[p.pos] == 'i'
	p.pos++
	if p.pos >= len(p.s) {
		return Field{}, fmt.Errorf("%w: expected size digit at offset %d", ErrSignSyntax, p.pos)
	}
	var kind Kind
	switch p.s[p.pos] {
	case '1':
		kind = KindU1
	case '2':
		kind = KindU2
	case '4':
		kind = KindU4
	case '8':
		kind = KindU8
	default:
		return Field{}, fmt.Errorf("%w: invalid integer width %q at offset %d", ErrSignSyntax, p.s[p.pos], p.pos)
	}
	p.pos++
	if signed {
		switch kind {
		case KindU1:
			kind = KindI1
		case KindU2:
			kind = KindI2
		case KindU4:
			kind = KindI4
		case KindU8:
			kind = KindI8
		}
	}
	return Field{Kind: kind}, nil
}

// MustParseSignature is ParseSignature, panicking on a malformed
// signature. Intended for package-level signature constants, not for
// parsing untrusted input.
func MustParseSignature(s string) Signature {
	sig, err := ParseSignature(s)
	if err != nil {
		panic(err)
	}
	return sig
}

func (s Signature) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.string()
	}
	return strings.Join(parts, " ")
}

func (f Field) string() string {
	switch f.Kind {
	case KindVector:
		return "v" + f.Elem.string()
	case KindGroup:
		return "(" + Signature(f.Group).String() + ")"
	default:
		return f.Kind.String()
	}
}
