// Package wire implements the signature-driven binary codec (component
// K): a small grammar describing fixed-width integers, IEEE-754 doubles,
// length-prefixed vectors and nested groups, encoded big-endian, and a
// reflection-based encoder/decoder that maps a parsed signature onto Go
// struct fields and slices positionally.
//
// A signature is a space-separated sequence of fields:
//
//	u1 u2 u4 u8   unsigned integers, 1/2/4/8 bytes
//	i1 i2 i4 i8   signed two's-complement integers, 1/2/4/8 bytes
//	f             IEEE-754 double (8 bytes)
//	v<field>      length-prefixed (u4) vector of <field>
//	(fields...)   a group, recursively another signature
//
// A single-field signature encodes/decodes directly against the Go value
// (e.g. a "v(u1 u4)" signature against a []struct{A uint8; B uint32}); a
// multi-field signature encodes/decodes against a struct whose exported
// fields are taken in declaration order.
package wire
