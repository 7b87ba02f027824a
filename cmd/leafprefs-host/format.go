package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/CreativeUnicorns/leafprefs"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.FgBlue, color.Bold)
	labelColor   = color.New(color.FgWhite, color.Bold)
	kindColor    = color.New(color.FgCyan)
	dimColor     = color.New(color.FgHiBlack)
)

// PrintError prints an error message to stderr
func PrintError(msg string) {
	_, _ = errorColor.Fprintf(os.Stderr, "✗ %s\n", msg)
}

func printSuccess(w io.Writer, msg string) {
	_, _ = successColor.Fprintf(w, "✓ %s\n", msg)
}

func printHeader(w io.Writer, title string) {
	_, _ = headerColor.Fprintf(w, "▸ %s\n", title)
}

// printValue prints "key  kind  rendering", the rendering being the decoded
// payload when there is one and the raw token otherwise.
func printValue(w io.Writer, indent, key string, v leafprefs.Value) {
	_, _ = labelColor.Fprintf(w, "%s%s", indent, key)
	_, _ = kindColor.Fprintf(w, "  %s", v.Kind())
	fmt.Fprintf(w, "  %s\n", renderValue(v))
}

func renderValue(v leafprefs.Value) string {
	switch v.Kind() {
	case leafprefs.KindString:
		s, _ := v.Text()
		return fmt.Sprintf("%q", s)
	case leafprefs.KindBool:
		if b, ok := v.Bool(); ok {
			return fmt.Sprint(b)
		}
	case leafprefs.KindNumber:
		n, _ := v.Number()
		return fmt.Sprint(n)
	case leafprefs.KindColor:
		if c, ok := v.Color(); ok {
			return c.Hex()
		}
	default:
		return dimColor.Sprintf("%q", v.Raw())
	}
	return dimColor.Sprint("(absent)")
}
