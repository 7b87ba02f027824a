package leafprefs

import (
	"errors"
	"testing"
)

func TestIsSentinel(t *testing.T) {
	for _, s := range []string{"", "nil"} {
		if !isSentinel(s) {
			t.Errorf("Expected %q to be a sentinel", s)
		}
	}
	for _, s := range []string{"Nil", "null", "theme", " nil"} {
		if isSentinel(s) {
			t.Errorf("Expected %q not to be a sentinel", s)
		}
	}
}

func TestValidateContainer(t *testing.T) {
	valid := []string{"com.example.leaf", "leaf", "my-leaf_2"}
	invalid := []string{"", "nil", ".", "..", "a/b", `a\b`, "../etc", "bad\x00name"}

	for _, c := range valid {
		if err := ValidateContainer(c); err != nil {
			t.Errorf("Expected container %q to be valid, got %v", c, err)
		}
	}
	for _, c := range invalid {
		err := ValidateContainer(c)
		if !errors.Is(err, ErrInvalidContainer) {
			t.Errorf("Expected ErrInvalidContainer for %q, got %v", c, err)
		}
	}
}

func TestValidateKey(t *testing.T) {
	if err := ValidateKey("theme"); err != nil {
		t.Errorf("Expected key to be valid, got %v", err)
	}
	for _, k := range []string{"", "nil"} {
		if err := ValidateKey(k); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Expected ErrInvalidKey for %q, got %v", k, err)
		}
	}
}
