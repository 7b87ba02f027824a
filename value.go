package leafprefs

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Token tags. Dispatch is on the first tagWidth bytes of a token.
const (
	tagWidth  = 5
	tagColor  = "color"
	tagString = "string"
	tagBool   = "bool "
	tagNumber = "numbe"
)

// Value is the tagged union stored behind a preference. Every kind except
// KindUnknown carries an optional payload; a Value with no payload is still a
// value of its kind. The zero Value is unknown.
type Value struct {
	kind    Kind
	present bool
	color   Color
	text    string
	flag    bool
	number  float64
	raw     string
}

// ColorValue wraps a color payload.
func ColorValue(c Color) Value {
	return Value{kind: KindColor, present: true, color: NewColor(c.Red, c.Green, c.Blue, c.Alpha)}
}

// StringValue wraps a text payload.
func StringValue(s string) Value {
	return Value{kind: KindString, present: true, text: s}
}

// BoolValue wraps a boolean payload.
func BoolValue(b bool) Value {
	return Value{kind: KindBool, present: true, flag: b}
}

// NumberValue wraps a numeric payload.
func NumberValue(f float64) Value {
	return Value{kind: KindNumber, present: true, number: f}
}

// Absent returns a value of kind k that carries no payload.
func Absent(k Kind) Value {
	return Value{kind: k}
}

// Unknown returns an unrecognized value retaining the raw token it came from.
func Unknown(raw string) Value {
	return Value{raw: raw}
}

// Kind reports the variant of v.
func (v Value) Kind() Kind { return v.kind }

// HasPayload reports whether v carries a payload.
func (v Value) HasPayload() bool { return v.present && v.kind != KindUnknown }

// Color returns the color payload.
func (v Value) Color() (Color, bool) {
	return v.color, v.kind == KindColor && v.present
}

// Text returns the string payload.
func (v Value) Text() (string, bool) {
	return v.text, v.kind == KindString && v.present
}

// Bool returns the boolean payload.
func (v Value) Bool() (bool, bool) {
	return v.flag, v.kind == KindBool && v.present
}

// Number returns the numeric payload.
func (v Value) Number() (float64, bool) {
	return v.number, v.kind == KindNumber && v.present
}

// Raw returns the original token of an unknown value.
func (v Value) Raw() string { return v.raw }

// Equal compares two values by their encoded tokens.
func (v Value) Equal(other Value) bool {
	return v.Encode() == other.Encode()
}

// String returns the encoded token.
func (v Value) String() string { return v.Encode() }

// Encode renders v as a single token: a fixed tag followed by the payload.
// Unknown values encode to the empty string.
func (v Value) Encode() string {
	switch v.kind {
	case KindColor:
		if !v.present {
			return tagColor
		}
		data, err := json.Marshal(v.color)
		if err != nil {
			return tagColor
		}
		return tagColor + string(data)
	case KindString:
		return tagString + v.text
	case KindBool:
		switch {
		case !v.present:
			return tagBool
		case v.flag:
			return tagBool + "1"
		default:
			return tagBool + "0"
		}
	case KindNumber:
		// An absent number is written as zero.
		return tagNumber + strconv.FormatFloat(v.number, 'g', -1, 64)
	default:
		return ""
	}
}

// Decode parses a token produced by Encode. It never fails: anything it cannot
// interpret comes back as an unknown value holding the input.
func Decode(token string) Value {
	if len(token) < tagWidth {
		return Unknown(token)
	}
	payload := token[tagWidth:]

	switch token[:tagWidth] {
	case tagString[:tagWidth]:
		if !strings.HasPrefix(payload, tagString[tagWidth:]) {
			return Unknown(token)
		}
		return StringValue(payload[len(tagString)-tagWidth:])
	case tagBool:
		if payload == "" {
			return Absent(KindBool)
		}
		return BoolValue(payload == "1")
	case tagNumber:
		f, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			f = 0
		}
		return NumberValue(f)
	case tagColor:
		if payload == "" {
			return Absent(KindColor)
		}
		var c Color
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return Absent(KindColor)
		}
		return ColorValue(c)
	default:
		return Unknown(token)
	}
}

// valueWire is the JSON envelope of a Value.
type valueWire struct {
	PrefValue *string `json:"prefValue"`
}

// MarshalJSON writes {"prefValue": "<token>"}.
func (v Value) MarshalJSON() ([]byte, error) {
	token := v.Encode()
	return json.Marshal(valueWire{PrefValue: &token})
}

// UnmarshalJSON reads {"prefValue": "<token>"}. Unlike Decode it refuses input
// it cannot interpret, returning an error wrapping ErrNondecodable.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w valueWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrNondecodable, err)
	}
	if w.PrefValue == nil {
		return fmt.Errorf("%w: missing prefValue", ErrNondecodable)
	}
	decoded := Decode(*w.PrefValue)
	if decoded.Kind() == KindUnknown {
		return fmt.Errorf("%w: %q", ErrNondecodable, *w.PrefValue)
	}
	*v = decoded
	return nil
}
