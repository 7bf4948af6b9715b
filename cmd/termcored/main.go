// Command termcored is the mux host: it owns the PTY population and serves
// the IPC socket. It is normally auto-spawned by termctl (via its hidden
// --shim re-exec) rather than run directly; this binary exists as an
// explicit foreground entrypoint for running the host under a supervisor
// or for debugging.
package main

import (
	"log"

	"termcore/internal/hostmain"
)

func main() {
	if err := hostmain.Run(false); err != nil {
		log.Fatalf("termcored: %v", err)
	}
}
