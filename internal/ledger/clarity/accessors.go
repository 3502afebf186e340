package clarity

import (
	"errors"
	"fmt"
)

var (
	ErrUnexpectedType = errors.New("clarity: unexpected value type")
	ErrNoneValue      = errors.New("clarity: optional is none")
)

// ResponseError is returned by Unwrap for an (err ...) response.
type ResponseError struct {
	Value Value
}

func (e *ResponseError) Error() string {
	return "clarity: contract returned " + Repr(ResponseErr{Value: e.Value})
}

// Unwrap strips any number of (ok ...) and (some ...) wrappers. An (err ...)
// becomes *ResponseError and none becomes ErrNoneValue.
func Unwrap(v Value) (Value, error) {
	for {
		switch t := v.(type) {
		case ResponseOk:
			v = t.Value
		case Some:
			v = t.Value
		case ResponseErr:
			return nil, &ResponseError{Value: t.Value}
		case None:
			return nil, ErrNoneValue
		default:
			return v, nil
		}
	}
}

// AsBool unwraps v and expects a bool.
func AsBool(v Value) (bool, error) {
	inner, err := Unwrap(v)
	if err != nil {
		return false, err
	}
	b, ok := inner.(Bool)
	if !ok {
		return false, fmt.Errorf("%w: want bool, got %s", ErrUnexpectedType, Repr(inner))
	}
	return bool(b), nil
}

// AsUInt unwraps v and expects a uint.
func AsUInt(v Value) (uint64, error) {
	inner, err := Unwrap(v)
	if err != nil {
		return 0, err
	}
	u, ok := inner.(UInt)
	if !ok {
		return 0, fmt.Errorf("%w: want uint, got %s", ErrUnexpectedType, Repr(inner))
	}
	return uint64(u), nil
}

// Native converts v into plain Go values suitable for JSON encoding:
// uint/int become numbers, strings and principals strings, buffers hex
// strings, lists slices, tuples maps, none nil. Responses keep their
// shape as {"ok": ...} or {"err": ...}.
func Native(v Value) any {
	switch t := v.(type) {
	case Int:
		return int64(t)
	case UInt:
		return uint64(t)
	case Bool:
		return bool(t)
	case Buffer:
		return fmt.Sprintf("0x%x", []byte(t))
	case StringASCII:
		return string(t)
	case StringUTF8:
		return string(t)
	case StandardPrincipal:
		return t.String()
	case ContractPrincipal:
		return t.String()
	case None:
		return nil
	case Some:
		return Native(t.Value)
	case ResponseOk:
		return map[string]any{"ok": Native(t.Value)}
	case ResponseErr:
		return map[string]any{"err": Native(t.Value)}
	case List:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Native(item)
		}
		return out
	case Tuple:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = Native(item)
		}
		return out
	default:
		return nil
	}
}
