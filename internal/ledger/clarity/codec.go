package clarity

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxDepth = 32

var (
	ErrTruncated   = errors.New("clarity: truncated input")
	ErrUnknownType = errors.New("clarity: unknown type prefix")
	ErrOverflow    = errors.New("clarity: integer does not fit in 64 bits")
	ErrTooDeep     = errors.New("clarity: value nesting too deep")
	ErrTrailing    = errors.New("clarity: trailing bytes")
	ErrEncoding    = errors.New("clarity: invalid value")
)

// Serialize encodes v in consensus format.
func Serialize(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := write(&buf, v, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SerializeHex returns the "0x"-prefixed hex form used by the node's HTTP API.
func SerializeHex(v Value) (string, error) {
	b, err := Serialize(v)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(b), nil
}

func write(buf *bytes.Buffer, v Value, depth int) error {
	if depth > maxDepth {
		return ErrTooDeep
	}
	if v == nil {
		return fmt.Errorf("%w: nil", ErrEncoding)
	}
	buf.WriteByte(byte(v.Type()))

	switch t := v.(type) {
	case Int:
		var b [16]byte
		if t < 0 {
			copy(b[:8], bytes.Repeat([]byte{0xff}, 8))
		}
		binary.BigEndian.PutUint64(b[8:], uint64(t))
		buf.Write(b[:])
	case UInt:
		var b [16]byte
		binary.BigEndian.PutUint64(b[8:], uint64(t))
		buf.Write(b[:])
	case Bool, None:
	case Buffer:
		writeLen(buf, len(t))
		buf.Write(t)
	case StringASCII:
		for i := 0; i < len(t); i++ {
			if t[i] >= utf8.RuneSelf {
				return fmt.Errorf("%w: non-ascii byte in string-ascii", ErrEncoding)
			}
		}
		writeLen(buf, len(t))
		buf.WriteString(string(t))
	case StringUTF8:
		if !utf8.ValidString(string(t)) {
			return fmt.Errorf("%w: invalid utf-8", ErrEncoding)
		}
		writeLen(buf, len(t))
		buf.WriteString(string(t))
	case StandardPrincipal:
		buf.WriteByte(t.Version)
		buf.Write(t.Hash160[:])
	case ContractPrincipal:
		if len(t.Name) == 0 || len(t.Name) > 128 {
			return fmt.Errorf("%w: contract name length %d", ErrEncoding, len(t.Name))
		}
		buf.WriteByte(t.Version)
		buf.Write(t.Hash160[:])
		buf.WriteByte(byte(len(t.Name)))
		buf.WriteString(t.Name)
	case Some:
		return write(buf, t.Value, depth+1)
	case ResponseOk:
		return write(buf, t.Value, depth+1)
	case ResponseErr:
		return write(buf, t.Value, depth+1)
	case List:
		writeLen(buf, len(t))
		for _, item := range t {
			if err := write(buf, item, depth+1); err != nil {
				return err
			}
		}
	case Tuple:
		writeLen(buf, len(t))
		// Tuple fields are serialized in lexicographic key order.
		for _, k := range t.keys() {
			if len(k) == 0 || len(k) > 128 {
				return fmt.Errorf("%w: tuple key %q", ErrEncoding, k)
			}
			buf.WriteByte(byte(len(k)))
			buf.WriteString(k)
			if err := write(buf, t[k], depth+1); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %T", ErrEncoding, v)
	}
	return nil
}

func writeLen(buf *bytes.Buffer, n int) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	buf.Write(b[:])
}

// Deserialize decodes exactly one value from b.
func Deserialize(b []byte) (Value, error) {
	r := &reader{b: b}
	v, err := r.value(0)
	if err != nil {
		return nil, err
	}
	if r.pos != len(b) {
		return nil, ErrTrailing
	}
	return v, nil
}

// DeserializeHex accepts hex with or without a "0x" prefix.
func DeserializeHex(s string) (Value, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("clarity: bad hex: %w", err)
	}
	return Deserialize(b)
}

type reader struct {
	b   []byte
	pos int
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.b) {
		return nil, ErrTruncated
	}
	out := r.b[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) readByte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u32() (int, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint32(b)
	// every element takes at least one byte
	if int(n) > len(r.b)-r.pos {
		return 0, ErrTruncated
	}
	return int(n), nil
}

func (r *reader) principal() (StandardPrincipal, error) {
	var p StandardPrincipal
	v, err := r.readByte()
	if err != nil {
		return p, err
	}
	h, err := r.take(20)
	if err != nil {
		return p, err
	}
	p.Version = v
	copy(p.Hash160[:], h)
	return p, nil
}

func (r *reader) value(depth int) (Value, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}
	prefix, err := r.readByte()
	if err != nil {
		return nil, err
	}

	switch TypeID(prefix) {
	case TypeInt:
		b, err := r.take(16)
		if err != nil {
			return nil, err
		}
		hi := binary.BigEndian.Uint64(b[:8])
		lo := binary.BigEndian.Uint64(b[8:])
		neg := int64(lo) < 0
		if (!neg && hi != 0) || (neg && hi != ^uint64(0)) {
			return nil, ErrOverflow
		}
		return Int(int64(lo)), nil
	case TypeUInt:
		b, err := r.take(16)
		if err != nil {
			return nil, err
		}
		if binary.BigEndian.Uint64(b[:8]) != 0 {
			return nil, ErrOverflow
		}
		return UInt(binary.BigEndian.Uint64(b[8:])), nil
	case TypeTrue:
		return Bool(true), nil
	case TypeFalse:
		return Bool(false), nil
	case TypeNone:
		return None{}, nil
	case TypeBuffer, TypeStringASCII, TypeStringUTF8:
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		b, err := r.take(n)
		if err != nil {
			return nil, err
		}
		switch TypeID(prefix) {
		case TypeBuffer:
			return Buffer(append([]byte(nil), b...)), nil
		case TypeStringASCII:
			return StringASCII(b), nil
		default:
			if !utf8.Valid(b) {
				return nil, fmt.Errorf("%w: invalid utf-8", ErrEncoding)
			}
			return StringUTF8(b), nil
		}
	case TypeStandardPrincipal:
		return r.principal()
	case TypeContractPrincipal:
		p, err := r.principal()
		if err != nil {
			return nil, err
		}
		n, err := r.readByte()
		if err != nil {
			return nil, err
		}
		name, err := r.take(int(n))
		if err != nil {
			return nil, err
		}
		return ContractPrincipal{StandardPrincipal: p, Name: string(name)}, nil
	case TypeSome, TypeResponseOk, TypeResponseErr:
		inner, err := r.value(depth + 1)
		if err != nil {
			return nil, err
		}
		switch TypeID(prefix) {
		case TypeSome:
			return Some{Value: inner}, nil
		case TypeResponseOk:
			return ResponseOk{Value: inner}, nil
		default:
			return ResponseErr{Value: inner}, nil
		}
	case TypeList:
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		list := make(List, 0, n)
		for i := 0; i < n; i++ {
			item, err := r.value(depth + 1)
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil
	case TypeTuple:
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		tuple := make(Tuple, n)
		for i := 0; i < n; i++ {
			kl, err := r.readByte()
			if err != nil {
				return nil, err
			}
			k, err := r.take(int(kl))
			if err != nil {
				return nil, err
			}
			v, err := r.value(depth + 1)
			if err != nil {
				return nil, err
			}
			tuple[string(k)] = v
		}
		return tuple, nil
	default:
		return nil, fmt.Errorf("%w 0x%02x", ErrUnknownType, prefix)
	}
}
