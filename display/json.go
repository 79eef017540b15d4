package display

import (
	"encoding/json"
	"flag"
	"os"

	"golang.org/x/term"
)

// MarshalJSON marshals JSON with pretty formatting for terminals and tests,
// compact formatting when stdout is piped.
func MarshalJSON(v interface{}) ([]byte, error) {
	if flag.Lookup("test.v") != nil || term.IsTerminal(int(os.Stdout.Fd())) {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}
