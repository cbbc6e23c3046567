// Package models is the catalog of upstream models the gateway serves.
package models

import "strings"

// Info describes one servable model.
type Info struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	InputLimit  int    `json:"input_token_limit"`
	OutputLimit int    `json:"output_token_limit"`
}

var catalog = []Info{
	{ID: "gemini-2.5-pro", DisplayName: "Gemini 2.5 Pro", InputLimit: 1048576, OutputLimit: 65536},
	{ID: "gemini-2.5-flash", DisplayName: "Gemini 2.5 Flash", InputLimit: 1048576, OutputLimit: 65536},
	{ID: "gemini-2.5-flash-lite", DisplayName: "Gemini 2.5 Flash Lite", InputLimit: 1048576, OutputLimit: 65536},
}

// aliases maps legacy or shorthand names onto catalog ids.
var aliases = map[string]string{
	"gemini-pro":        "gemini-2.5-pro",
	"gemini-flash":      "gemini-2.5-flash",
	"gemini-flash-lite": "gemini-2.5-flash-lite",
}

// All returns the catalog in listing order.
func All() []Info {
	out := make([]Info, len(catalog))
	copy(out, catalog)
	return out
}

// Resolve normalizes a requested model name: strips the "models/" prefix and
// follows aliases. The second return reports whether the model is known.
func Resolve(name string) (string, bool) {
	id := strings.TrimPrefix(strings.TrimSpace(name), "models/")
	if target, ok := aliases[id]; ok {
		id = target
	}
	for _, m := range catalog {
		if m.ID == id {
			return id, true
		}
	}
	return id, false
}
