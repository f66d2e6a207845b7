package main

import (
	"encoding/json"
	"fmt"
	"io"
)

type outputFormat string

const (
	outputText outputFormat = "text"
	outputJSON outputFormat = "json"
)

func parseOutputFormat(s string) (outputFormat, error) {
	switch s {
	case "text", "":
		return outputText, nil
	case "json":
		return outputJSON, nil
	default:
		return "", fmt.Errorf("invalid output format %q: must be 'text' or 'json'", s)
	}
}

// print writes v as indented JSON, or text otherwise.
func (a *app) print(v interface{}, text string) error {
	return writeOutput(a.stdout, a.format, v, text)
}

func writeOutput(w io.Writer, format outputFormat, v interface{}, text string) error {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
