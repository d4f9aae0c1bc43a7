package logic

import "errors"

// Legacy single-byte event codes: the button index is added to the base.
const (
	CodeNone   byte = 0x00
	CodeShort  byte = 0x01
	CodeDouble byte = 0x51
	CodeLong   byte = 0x81
	CodeError  byte = 0xFF
)

var (
	ErrUnencodable = errors.New("logic: event does not fit the byte encoding")

	errNilDependency = errors.New("logic: level reader and clock are required")
)

// Code encodes the event in the legacy byte form.
func (e Event) Code() (byte, error) {
	var base, limit byte
	switch e.Kind {
	case KindNone:
		return CodeNone, nil
	case KindError:
		return CodeError, nil
	case KindShort:
		base, limit = CodeShort, CodeDouble
	case KindDouble:
		base, limit = CodeDouble, CodeLong
	case KindLong:
		base, limit = CodeLong, CodeError
	default:
		return 0, ErrUnencodable
	}
	if e.Button < 0 || e.Button >= int(limit-base) {
		return 0, ErrUnencodable
	}
	return base + byte(e.Button), nil
}

// DecodeCode parses a legacy byte code. Every byte value decodes; callers
// check the button index against their own button count.
func DecodeCode(code byte) Event {
	switch {
	case code == CodeNone:
		return Event{}
	case code == CodeError:
		return Event{Kind: KindError}
	case code >= CodeLong:
		return Event{Kind: KindLong, Button: int(code - CodeLong)}
	case code >= CodeDouble:
		return Event{Kind: KindDouble, Button: int(code - CodeDouble)}
	}
	return Event{Kind: KindShort, Button: int(code - CodeShort)}
}
