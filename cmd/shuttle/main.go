package main

import (
	"fmt"
	"io"
	"os"

	"gitlab.com/tozd/go/errors"

	"github.com/lyallcooper/shuttle/internal/session"
	"github.com/lyallcooper/shuttle/internal/transfer"
)

// Set by -ldflags at release time
var (
	version = "dev"
	commit  = ""
)

func main() {
	os.Exit(exitCode(os.Stderr, Execute()))
}

// exitCode reports err on w and returns the process exit status. A nonzero
// rsync exit still exits 1, but the transfer summary has already said so.
func exitCode(w io.Writer, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, session.ErrAborted):
		fmt.Fprintln(w, "Aborted.")
		return 130
	case errors.Is(err, transfer.ErrTransferFailed):
		return 1
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
		return 1
	}
}
