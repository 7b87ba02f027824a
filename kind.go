package leafprefs

import "fmt"

// Kind is the declared type of a preference. It is informational: a Preference
// never rejects a stored value whose kind differs from its declaration.
type Kind int

// Preference kinds.
const (
	// KindUnknown marks a value that could not be interpreted.
	KindUnknown Kind = iota
	// KindColor is an RGBA color with normalized channels.
	KindColor
	// KindString is free-form text.
	KindString
	// KindBool is a boolean flag.
	KindBool
	// KindNumber is a floating-point number.
	KindNumber
)

var kindNames = map[Kind]string{
	KindUnknown: "unknown",
	KindColor:   "color",
	KindString:  "string",
	KindBool:    "bool",
	KindNumber:  "number",
}

// String returns the lowercase kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: unknown kind %q", ErrNondecodable, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
