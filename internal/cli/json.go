package cli

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// jsonToken matches keys (with their colon), strings, literals and numbers.
var jsonToken = regexp.MustCompile(`("(\\u[a-zA-Z0-9]{4}|\\[^u]|[^\\"])*"(\s*:)?|\b(true|false|null)\b|-?\d+(?:\.\d*)?(?:[eE][+\-]?\d+)?)`)

// HighlightJSON colors an encoded JSON document.
func HighlightJSON(doc string) string {
	if !Enabled() {
		return doc
	}
	return jsonToken.ReplaceAllStringFunc(doc, func(token string) string {
		switch {
		case strings.HasSuffix(token, ":"):
			return Style(token[:len(token)-1], Blue) + ":"
		case strings.HasPrefix(token, `"`):
			return Style(token, Green)
		case token == "true" || token == "false":
			return Style(token, Yellow)
		case token == "null":
			return Style(token, DimCode)
		default:
			return Style(token, Purple)
		}
	})
}

// PrettyFormat indents v as JSON and highlights it. Strings and byte slices
// are assumed to already hold JSON.
func PrettyFormat(v interface{}) string {
	var doc string
	switch t := v.(type) {
	case []byte:
		doc = string(t)
	case string:
		doc = t
	default:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%+v", v)
		}
		doc = string(b)
	}
	return HighlightJSON(doc)
}

// PrettyPrint writes PrettyFormat(v) to stdout.
func PrettyPrint(v interface{}) {
	fmt.Println(PrettyFormat(v))
}
