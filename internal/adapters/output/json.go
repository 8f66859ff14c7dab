package output

import (
	"encoding/json"
	"io"
	"os"
)

// JSONPrinter prints indented JSON.
type JSONPrinter struct {
	// Out defaults to stdout.
	Out io.Writer
}

// Print renders JSON output.
func (p JSONPrinter) Print(v any) error {
	out := p.Out
	if out == nil {
		out = os.Stdout
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
