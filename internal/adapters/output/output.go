// Package output renders CLI results as pterm tables or JSON.
package output

// Printer renders output to stdout.
type Printer interface {
	Print(v any) error
}
