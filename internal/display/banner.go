package display

import (
	"fmt"
	"io"

	"github.com/backmassage/sizefit/internal/term"
)

// PrintBanner prints the ASCII art banner to w; uses Magenta if colors are enabled.
func PrintBanner(w io.Writer, version string) {
	fmt.Fprint(w, term.Magenta)
	fmt.Fprint(w, `     _          __ _ _
 ___(_)_______ / _(_) |_
/ __| |_  / _ \ |_| | __|
\__ \ |/ /  __/  _| | |_
|___/_/___\___|_| |_|\__|
`)
	fmt.Fprint(w, term.NC)
	fmt.Fprintf(w, "v%s\n\n", version)
}
