package validate

import (
	"fmt"
	"io"
)

// Write prints the result the way operators read it in a terminal.
func Write(w io.Writer, res *Result) error {
	if _, err := fmt.Fprintf(w, "Validated %d entries.\n", res.Rows); err != nil {
		return err
	}
	if res.OK() {
		_, err := fmt.Fprintln(w, "No issues found.")
		return err
	}
	if _, err := fmt.Fprintf(w, "\n%d issue(s) found:\n\n", len(res.Issues)); err != nil {
		return err
	}
	for _, i := range res.Issues {
		if _, err := fmt.Fprintf(w, "  %s\n", i); err != nil {
			return err
		}
	}
	return nil
}
