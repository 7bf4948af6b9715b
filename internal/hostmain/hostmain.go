// Package hostmain is the mux host's startup sequence: load config, prepare
// the socket directory, take the single-instance lock, listen, and serve.
// It is shared by termctl's hidden --shim re-exec and by termcored's
// explicit foreground entrypoint, so the two never drift apart.
package hostmain

import (
	"fmt"
	"log"
	"net"
	"os"

	"termcore/internal/config"
	"termcore/internal/ipcserver"
	"termcore/internal/ptyhost"
	"termcore/internal/socketdir"
)

// Run loads config, binds the socket, and serves until the last client
// sends the "shutdown" request or the listener errors. When quiet is
// true, startup is not logged — used for the auto-spawned background shim,
// which has no attached terminal for a human to read that line on.
func Run(quiet bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dir := socketdir.Dir(cfg.SocketDir)
	path, err := socketdir.Prepare(dir)
	if err != nil {
		return fmt.Errorf("prepare socket dir: %w", err)
	}

	host := ptyhost.New("")
	if err := host.Lock(dir); err != nil {
		return err
	}
	defer host.Unlock()

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", path, err)
	}
	defer ln.Close()

	server := ipcserver.New(host)
	server.OnShutdown(func() {
		ln.Close()
		os.Exit(0)
	})

	if !quiet {
		log.Printf("termcored: listening on %s", path)
	}
	if err := server.Serve(ln); err != nil {
		log.Printf("termcored: serve: %v", err)
	}
	return nil
}
