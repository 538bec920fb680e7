package util

import (
	"bytes"
	"encoding/json"

	"github.com/pterm/pterm"
)

// PrintPrettyJSON prints v as indented JSON. Raw JSON byte slices are
// re-indented rather than re-encoded.
func PrintPrettyJSON(v any) error {
	var buf bytes.Buffer
	switch raw := v.(type) {
	case json.RawMessage:
		if len(raw) == 0 {
			pterm.Println("{}")
			return nil
		}
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return err
		}
	default:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	pterm.Println(string(bytes.TrimRight(buf.Bytes(), "\n")))
	return nil
}
