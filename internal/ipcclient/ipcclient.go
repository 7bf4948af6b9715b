// Package ipcclient connects to the mux host's stream socket, auto-spawning
// it once if the socket isn't reachable yet, and multiplexes requests over
// one connection by correlating responses with requestId. It mirrors the
// teacher's ForkDaemon dial-retry loop and its attach-session frame reader,
// generalized to a single long-lived connection per client instead of one
// attach per invocation.
package ipcclient

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"termcore/internal/framing"
)

const (
	dialRetries  = 25
	dialInterval = 120 * time.Millisecond
)

// ErrDetached is returned by every pending and future request once the
// client has observed a detached frame or a post-attach socket close.
var ErrDetached = fmt.Errorf("Shim client detached")

// PtyUpdateHandler receives one unpacked ptyUpdate/ptyExit/ptyLifecycle/
// ptyTitle frame as it arrives.
type PtyUpdateHandler func(framing.Frame)

// Client is a single connection to the host, with request/response
// correlation and broadcast-frame dispatch.
type Client struct {
	id   string
	conn net.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan framing.Frame
	detached bool

	onBroadcast      PtyUpdateHandler
	onShimDetached   func()
	detachedNotified bool
}

// Dial connects to socketPath, spawning the host process via spawn() once
// (passing it "--shim") if the first connection attempt fails, then retries
// up to dialRetries times at dialInterval before giving up.
func Dial(socketPath string, spawn func() error) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialInterval)
	if err != nil {
		if spawn != nil {
			if serr := spawn(); serr != nil {
				return nil, fmt.Errorf("ipcclient: spawn host: %w", serr)
			}
		}
		conn, err = dialWithRetry(socketPath)
		if err != nil {
			return nil, err
		}
	}

	c := &Client{
		id:      uuid.NewString(),
		conn:    conn,
		pending: make(map[string]chan framing.Frame),
	}
	go c.readLoop()
	if err := c.hello(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func dialWithRetry(socketPath string) (net.Conn, error) {
	var lastErr error
	for i := 0; i < dialRetries; i++ {
		conn, err := net.DialTimeout("unix", socketPath, dialInterval)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(dialInterval)
	}
	return nil, fmt.Errorf("ipcclient: could not connect to %s after %d attempts: %w", socketPath, dialRetries, lastErr)
}

// SpawnShim returns a spawn function that re-execs the current binary with
// a hidden "--shim" flag and waits for socketPath to appear, matching the
// teacher's ForkDaemon fork-and-poll pattern.
func SpawnShim(socketPath string) func() error {
	return func() error {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("find executable: %w", err)
		}
		cmd := exec.Command(exe, "--shim")
		devNull, err := os.Open(os.DevNull)
		if err != nil {
			return fmt.Errorf("open /dev/null: %w", err)
		}
		cmd.Stdin, cmd.Stdout, cmd.Stderr = devNull, devNull, devNull
		if err := cmd.Start(); err != nil {
			devNull.Close()
			return fmt.Errorf("start host: %w", err)
		}
		go func() { cmd.Wait(); devNull.Close() }()

		for i := 0; i < dialRetries; i++ {
			time.Sleep(dialInterval)
			if _, statErr := os.Stat(socketPath); statErr == nil {
				return nil
			}
		}
		return fmt.Errorf("host did not start (socket %s not found)", socketPath)
	}
}

// ClientID returns the id this client attached with.
func (c *Client) ClientID() string { return c.id }

func (c *Client) hello() error {
	_, err := c.Request("hello", map[string]any{"clientId": c.id}, nil)
	return err
}

// OnBroadcast registers the handler for unsolicited ptyUpdate/ptyExit/
// ptyLifecycle/ptyTitle frames.
func (c *Client) OnBroadcast(fn PtyUpdateHandler) { c.onBroadcast = fn }

// OnShimDetached registers fn to be invoked exactly once: on receipt of a
// detached frame, or on socket close after a successful attach.
func (c *Client) OnShimDetached(fn func()) { c.onShimDetached = fn }

// Request sends method with the given fields and payloads, blocking until a
// matching response arrives or the client is detached.
func (c *Client) Request(method string, fields map[string]any, payloads [][]byte) (framing.Frame, error) {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return framing.Frame{}, ErrDetached
	}
	requestID := uuid.NewString()
	ch := make(chan framing.Frame, 1)
	c.pending[requestID] = ch
	c.mu.Unlock()

	h := framing.Header{Type: framing.TypeRequest, RequestID: requestID, Method: method, Fields: fields}
	c.writeMu.Lock()
	err := framing.WriteFrame(c.conn, h, payloads...)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
		return framing.Frame{}, fmt.Errorf("ipcclient: write request: %w", err)
	}

	resp, ok := <-ch
	if !ok {
		return framing.Frame{}, ErrDetached
	}
	if !resp.Header.OK {
		return resp, fmt.Errorf("%s", resp.Header.Error)
	}
	return resp, nil
}

// readLoop is the connection's sole reader: it demultiplexes responses to
// pending requests and forwards every other frame type to onBroadcast.
func (c *Client) readLoop() {
	reader := framing.NewReader()
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			c.markDetached()
			return
		}
		frames, ferr := reader.Feed(buf[:n])
		if ferr != nil {
			c.markDetached()
			return
		}
		for _, f := range frames {
			if f.Header.Type == framing.TypeDetached {
				c.markDetached()
				return
			}
			if f.Header.Type == framing.TypeResponse {
				c.mu.Lock()
				ch, ok := c.pending[f.Header.RequestID]
				delete(c.pending, f.Header.RequestID)
				c.mu.Unlock()
				if ok {
					ch <- f
				}
				continue
			}
			if c.onBroadcast != nil {
				c.onBroadcast(f)
			}
		}
	}
}

// markDetached rejects every pending request with ErrDetached and fires
// onShimDetached exactly once.
func (c *Client) markDetached() {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return
	}
	c.detached = true
	pending := c.pending
	c.pending = nil
	notify := !c.detachedNotified
	c.detachedNotified = true
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	if notify && c.onShimDetached != nil {
		c.onShimDetached()
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
