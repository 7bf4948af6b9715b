// Command termctl is the client CLI: it dials the host's socket, re-execing
// itself in the background as the host (via a hidden --shim flag) if
// nothing is listening yet, and issues requests over the resulting
// connection. Interactive attach/render is out of scope here; this binary
// is a thin wrapper around internal/ipcclient.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"termcore/internal/config"
	"termcore/internal/hostmain"
	"termcore/internal/ipcclient"
	"termcore/internal/socketdir"
	"termcore/internal/version"
)

func main() {
	// SpawnShim re-execs this same binary as "termctl --shim" to bring up
	// the host in the background; intercept that before cobra ever sees
	// the flag, mirroring the teacher's own hidden-subcommand/fork-reexec
	// entrypoint split.
	for _, arg := range os.Args[1:] {
		if arg == "--shim" {
			if err := hostmain.Run(true); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			return
		}
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "termctl",
		Short: "control a termcore host",
	}

	root.AddCommand(
		newNewCmd(),
		newLsCmd(),
		newKillCmd(),
		newWriteCmd(),
		newResizeCmd(),
		newShowCmd(),
		newVersionCmd(),
	)
	return root
}

func dial() (*ipcclient.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	path := socketdir.Path(socketdir.Dir(cfg.SocketDir))
	return ipcclient.Dial(path, ipcclient.SpawnShim(path))
}

// syncHostColors detects this terminal's foreground/background palette via
// termenv and pushes it to the host, so the query responder answers guest
// OSC 10/11 probes with this terminal's real colors instead of the host's
// built-in black-on-white default. Best-effort: failure to detect a color
// leaves the host's existing palette alone.
func syncHostColors(c *ipcclient.Client) {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return
	}
	out := termenv.NewOutput(os.Stdout)
	fg, bg := out.ForegroundColor(), out.BackgroundColor()
	if fg == nil || bg == nil {
		return
	}
	c.Request("setHostColors", map[string]any{"fg": hexRGB(fg), "bg": hexRGB(bg)}, nil)
}

func hexRGB(c termenv.Color) string {
	rgb := termenv.ConvertToRGB(c)
	return fmt.Sprintf("#%02x%02x%02x", uint8(rgb.R*255+0.5), uint8(rgb.G*255+0.5), uint8(rgb.B*255+0.5))
}

func defaultSize() (cols, rows int) {
	cols, rows = 80, 24
	if isatty.IsTerminal(os.Stdout.Fd()) {
		if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			cols, rows = w, h
		}
	}
	return cols, rows
}

func newNewCmd() *cobra.Command {
	var cwd string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "create a new pty and print its id",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			syncHostColors(c)
			cols, rows := defaultSize()
			resp, err := c.Request("createPty", map[string]any{"cols": cols, "rows": rows, "cwd": cwd}, nil)
			if err != nil {
				return err
			}
			fmt.Println(resp.Header.Fields["ptyId"])
			return nil
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory for the new pty (defaults to termcored's cwd)")
	return cmd
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "list live ptys",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			resp, err := c.Request("listAll", nil, nil)
			if err != nil {
				return err
			}
			ids, _ := resp.Header.Fields["ptyIds"].([]any)
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	}
}

func newKillCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "kill [ptyId]",
		Short: "destroy one pty, or all of them with --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			if all {
				_, err := c.Request("destroyAll", nil, nil)
				return err
			}
			if len(args) != 1 {
				return fmt.Errorf("kill requires exactly one ptyId, or --all")
			}
			_, err = c.Request("destroy", map[string]any{"ptyId": args[0]}, nil)
			return err
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "destroy every pty (the host keeps running)")
	return cmd
}

func newWriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <ptyId> <data>",
		Short: "write raw bytes into a pty (debugging helper)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			_, err = c.Request("write", map[string]any{"ptyId": args[0]}, [][]byte{[]byte(args[1])})
			return err
		},
	}
}

func newResizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resize <ptyId> <cols> <rows>",
		Short: "resize a pty",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cols, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("cols: %w", err)
			}
			rows, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("rows: %w", err)
			}
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			_, err = c.Request("resize", map[string]any{"ptyId": args[0], "cols": cols, "rows": rows}, nil)
			return err
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <ptyId>",
		Short: "print a pty's cwd, title and size as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			resp, err := c.Request("getSession", map[string]any{"ptyId": args[0]}, nil)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp.Header.Fields)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the termctl version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version.DisplayVersion())
			return nil
		},
	}
}
