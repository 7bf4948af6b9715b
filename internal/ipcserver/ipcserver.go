// Package ipcserver implements the host side of the mux's IPC protocol: a
// single stream-socket listener with exactly-one-active-client semantics,
// handoff on reconnect, and a request dispatch table wired to
// internal/ptyhost. It follows the same one-goroutine-per-connection,
// mutex-guarded-shared-state shape the teacher uses for its own attach
// socket, generalized from one child process to a population of PTYs.
package ipcserver

import (
	"fmt"
	"log"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"termcore/internal/cellcodec"
	"termcore/internal/framing"
	"termcore/internal/ipcerr"
	"termcore/internal/ptyhost"
	"termcore/internal/version"
)

const requestTimeout = 500 * time.Millisecond

// clientConn is one socket connection, before or after promotion to active.
type clientConn struct {
	id   string
	conn net.Conn
	// writeMu serializes frame writes: broadcasts (updates, exits,
	// lifecycle, title) and request responses all write from different
	// goroutines onto the same connection.
	writeMu sync.Mutex
}

func (c *clientConn) send(h framing.Header, payloads ...[]byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return framing.WriteFrame(c.conn, h, payloads...)
}

// Server owns the single active client and dispatches its requests against
// a ptyhost.Host.
type Server struct {
	host *ptyhost.Host

	mu        sync.Mutex
	active    *clientConn
	revoked   map[string]bool
	unsubs    []func()
	onShutdown func()
}

// New returns a Server dispatching requests against host.
func New(host *ptyhost.Host) *Server {
	return &Server{host: host, revoked: make(map[string]bool)}
}

// OnShutdown registers the callback invoked when a client sends "shutdown".
func (s *Server) OnShutdown(fn func()) { s.onShutdown = fn }

// Serve accepts connections on ln until it returns an error (typically
// because the listener was closed during shutdown).
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	c := &clientConn{conn: conn}
	reader := framing.NewReader()
	buf := make([]byte, 4096)

	helloed := false
	defer func() {
		conn.Close()
		if helloed {
			s.onDisconnect(c)
		}
	}()

	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		frames, ferr := reader.Feed(buf[:n])
		if ferr != nil {
			log.Printf("ipcserver: malformed frame from %s: %v", conn.RemoteAddr(), ferr)
			return
		}
		for _, f := range frames {
			if !helloed {
				if f.Header.Type != framing.TypeRequest || f.Header.Method != "hello" {
					c.send(framing.Header{Type: framing.TypeResponse, RequestID: f.Header.RequestID, OK: false, Error: ipcerr.ErrInactiveClient.Message})
					return
				}
				clientID, _ := f.Header.Fields["clientId"].(string)
				if clientID == "" {
					c.send(framing.Header{Type: framing.TypeResponse, RequestID: f.Header.RequestID, OK: false, Error: "hello missing clientId"})
					return
				}
				if !s.promote(c, clientID) {
					c.send(framing.Header{Type: framing.TypeResponse, RequestID: f.Header.RequestID, OK: false, Error: ipcerr.ErrClientDetached.Message})
					return
				}
				helloed = true
				c.send(framing.Header{
					Type:      framing.TypeResponse,
					RequestID: f.Header.RequestID,
					OK:        true,
					Fields:    map[string]any{"hostVersion": version.DisplayVersion()},
				})
				continue
			}

			if !s.isActive(c) {
				c.send(framing.Header{Type: framing.TypeResponse, RequestID: f.Header.RequestID, OK: false, Error: ipcerr.ErrInactiveClient.Message})
				return
			}
			s.dispatch(c, f)
		}
	}
}

// promote revokes and detaches any existing active client, then installs c
// as the new active client, subscribing it to every live pty and sending
// each a full-state snapshot. Returns false if clientID is revoked.
func (s *Server) promote(c *clientConn, clientID string) bool {
	s.mu.Lock()
	if s.revoked[clientID] {
		s.mu.Unlock()
		return false
	}
	c.id = clientID
	prev := s.active
	prevUnsubs := s.unsubs
	s.active = c
	s.unsubs = nil
	if prev != nil {
		s.revoked[prev.id] = true
	}
	s.mu.Unlock()

	if prev != nil {
		go detachPrevious(prev, prevUnsubs)
	}

	s.subscribeActive(c)
	return true
}

// detachPrevious notifies the superseded client and tears down its
// subscriptions, with a bounded hard-close fallback if it doesn't react to
// the detached frame promptly.
func detachPrevious(prev *clientConn, unsubs []func()) {
	for _, unsub := range unsubs {
		unsub()
	}
	prev.send(framing.Header{Type: framing.TypeDetached})
	time.AfterFunc(250*time.Millisecond, func() { prev.conn.Close() })
	if half, ok := prev.conn.(interface{ CloseWrite() error }); ok {
		half.CloseWrite()
	}
}

func (s *Server) isActive(c *clientConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active == c
}

func (s *Server) onDisconnect(c *clientConn) {
	s.mu.Lock()
	if s.active != c {
		s.mu.Unlock()
		return
	}
	s.active = nil
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

// subscribeActive wires c to receive updates, exits, lifecycle and title
// events for every currently live pty, then sends each one's full state
// immediately so the client starts from a correct snapshot.
func (s *Server) subscribeActive(c *clientConn) {
	var unsubs []func()
	for _, ptyID := range s.host.ListAll() {
		ptyID := ptyID
		unsub, err := s.host.SubscribeUnified(ptyID, func(u ptyhost.Update) {
			s.sendUpdate(c, ptyID, u)
		})
		if err == nil {
			unsubs = append(unsubs, unsub)
		}
		exitUnsub, err := s.host.OnExit(ptyID, func(code int) {
			s.sendExit(c, ptyID, code)
		})
		if err == nil {
			unsubs = append(unsubs, exitUnsub)
		}
		if st, err := s.host.GetTerminalState(ptyID); err == nil {
			scroll, _ := s.host.GetScrollState(ptyID)
			s.sendUpdate(c, ptyID, ptyhost.Update{
				Dirty: cellcodec.DirtyUpdate{IsFull: true, FullState: &st, Cols: st.Cols, Rows: st.Rows, Cursor: st.Cursor, Modes: st.Modes, Scroll: scroll},
				Scroll: scroll,
			})
		}
	}
	unsubs = append(unsubs, s.host.SubscribeToLifecycle(func(ev ptyhost.LifecycleEvent) {
		s.sendLifecycle(c, ev)
	}))
	unsubs = append(unsubs, s.host.SubscribeToAllTitleChanges(func(ptyID, title string) {
		s.sendTitle(c, ptyID, title)
	}))

	s.mu.Lock()
	if s.active == c {
		s.unsubs = append(s.unsubs, unsubs...)
	}
	s.mu.Unlock()
}

// sendUpdate packs u.Dirty and writes a ptyUpdate frame. Payload order is
// significant: (rowIndices, rowData, fullStateData). The meta header rides
// in Fields rather than as a fourth payload.
func (s *Server) sendUpdate(c *clientConn, ptyID string, u ptyhost.Update) {
	packed := cellcodec.PackDirtyUpdate(u.Dirty)
	c.send(framing.Header{Type: framing.TypePtyUpdate, PtyID: ptyID, Fields: map[string]any{"meta": packed.Meta}},
		packed.RowIndices, packed.RowData, packed.FullStateData)
}

func (s *Server) sendExit(c *clientConn, ptyID string, code int) {
	c.send(framing.Header{Type: framing.TypePtyExit, PtyID: ptyID, Fields: map[string]any{"exitCode": code}})
}

func (s *Server) sendLifecycle(c *clientConn, ev ptyhost.LifecycleEvent) {
	event := "destroyed"
	if ev.Created {
		event = "created"
	}
	c.send(framing.Header{Type: framing.TypePtyLifecycle, PtyID: ev.PtyID, Fields: map[string]any{"event": event}})
}

func (s *Server) sendTitle(c *clientConn, ptyID, title string) {
	c.send(framing.Header{Type: framing.TypePtyTitle, PtyID: ptyID, Fields: map[string]any{"title": title}})
}

// dispatch runs f's request against the method table and always answers
// with exactly one response frame, converting handler panics and errors
// into {ok:false, error} rather than letting them kill the connection.
func (s *Server) dispatch(c *clientConn, f framing.Frame) {
	defer func() {
		if r := recover(); r != nil {
			c.send(framing.Header{Type: framing.TypeResponse, RequestID: f.Header.RequestID, OK: false, Error: fmt.Sprintf("internal error: %v", r)})
		}
	}()

	done := make(chan struct{})
	var result any
	var err error
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("internal error: %v", r)
			}
			close(done)
		}()
		result, err = s.call(f.Header.Method, f.Header, f.Payloads)
	}()

	select {
	case <-done:
	case <-time.After(requestTimeout):
		err = ipcerr.New(ipcerr.Transport, "request timed out")
	}

	if err != nil {
		c.send(framing.Header{Type: framing.TypeResponse, RequestID: f.Header.RequestID, OK: false, Error: err.Error()})
		return
	}
	fields, _ := result.(map[string]any)
	c.send(framing.Header{Type: framing.TypeResponse, RequestID: f.Header.RequestID, OK: true, Fields: fields})
}

func fieldString(fields map[string]any, key string) string {
	v, _ := fields[key].(string)
	return v
}

func fieldInt(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func fieldBool(fields map[string]any, key string) bool {
	v, _ := fields[key].(bool)
	return v
}

// call dispatches one request method. It never panics outward: dispatch's
// recover guards this whole call.
func (s *Server) call(method string, h framing.Header, payloads [][]byte) (any, error) {
	host := s.host
	ptyID := h.PtyID
	if ptyID == "" {
		ptyID = fieldString(h.Fields, "ptyId")
	}
	switch method {
	case "setHostColors":
		fg := parseRGB(fieldString(h.Fields, "fg"))
		bg := parseRGB(fieldString(h.Fields, "bg"))
		host.SetColors(fg, bg)
		return nil, nil

	case "createPty":
		id, err := host.Create(fieldInt(h.Fields, "cols"), fieldInt(h.Fields, "rows"), fieldString(h.Fields, "cwd"))
		if err != nil {
			return nil, ipcerr.Wrap(ipcerr.Transport, "create pty", err)
		}
		return map[string]any{"ptyId": id}, nil

	case "write":
		if len(payloads) == 0 {
			return nil, ipcerr.New(ipcerr.Protocol, "write missing data payload")
		}
		if err := host.Write(ptyID, payloads[0]); err != nil {
			return nil, notFoundOr(err, "write")
		}
		return nil, nil

	case "resize":
		if err := host.Resize(ptyID, fieldInt(h.Fields, "cols"), fieldInt(h.Fields, "rows")); err != nil {
			return nil, notFoundOr(err, "resize")
		}
		return nil, nil

	case "destroy":
		if err := host.Destroy(ptyID); err != nil {
			return nil, notFoundOr(err, "destroy")
		}
		return nil, nil

	case "destroyAll":
		host.DestroyAll()
		return nil, nil

	case "shutdown":
		host.DestroyAll()
		if s.onShutdown != nil {
			time.AfterFunc(10*time.Millisecond, s.onShutdown)
		}
		return nil, nil

	case "setPanePosition":
		if err := host.SetPanePosition(ptyID, fieldInt(h.Fields, "x"), fieldInt(h.Fields, "y")); err != nil {
			return nil, notFoundOr(err, "setPanePosition")
		}
		return nil, nil

	case "getCwd":
		cwd, err := host.Cwd(ptyID)
		if err != nil {
			return nil, notFoundOr(err, "getCwd")
		}
		return map[string]any{"cwd": cwd}, nil

	case "getTerminalState":
		st, err := host.GetTerminalState(ptyID)
		if err != nil {
			return nil, notFoundOr(err, "getTerminalState")
		}
		return map[string]any{"state": cellcodec.PackState(st)}, nil

	case "getScrollState":
		sc, err := host.GetScrollState(ptyID)
		if err != nil {
			return nil, notFoundOr(err, "getScrollState")
		}
		return map[string]any{
			"viewportOffset":      sc.ViewportOffset,
			"scrollbackLength":    sc.ScrollbackLength,
			"isAtBottom":          sc.IsAtBottom,
			"isAtScrollbackLimit": sc.IsAtScrollbackLimit,
		}, nil

	case "setScrollOffset":
		if err := host.SetScrollOffset(ptyID, fieldInt(h.Fields, "offset")); err != nil {
			return nil, notFoundOr(err, "setScrollOffset")
		}
		return nil, nil

	case "setUpdateEnabled":
		// update-suppression is an emulator-level optimization the host's
		// dirty tracking already makes cheap to skip; accepted for protocol
		// compatibility and otherwise a no-op at the IPC layer.
		_ = fieldBool(h.Fields, "enabled")
		return nil, nil

	case "getScrollbackLines":
		lines, err := host.GetScrollbackLines(ptyID, fieldInt(h.Fields, "startOffset"), fieldInt(h.Fields, "count"))
		if err != nil {
			return nil, notFoundOr(err, "getScrollbackLines")
		}
		out := make([]map[string]any, len(lines))
		for i, l := range lines {
			out[i] = map[string]any{"offset": l.Offset, "row": cellcodec.PackRow(l.Row)}
		}
		return map[string]any{"lines": out}, nil

	case "search":
		limit := fieldInt(h.Fields, "limit")
		res, err := host.Search(ptyID, fieldString(h.Fields, "query"), limit)
		if err != nil {
			return nil, notFoundOr(err, "search")
		}
		matches := make([]map[string]any, len(res.Matches))
		for i, m := range res.Matches {
			matches[i] = map[string]any{"offset": m.Offset, "startCol": m.StartCol, "endCol": m.EndCol}
		}
		return map[string]any{"matches": matches, "hasMore": res.HasMore}, nil

	case "listAll":
		return map[string]any{"ptyIds": host.ListAll()}, nil

	case "getSession":
		st, err := host.GetTerminalState(ptyID)
		if err != nil {
			return nil, notFoundOr(err, "getSession")
		}
		cwd, _ := host.Cwd(ptyID)
		title, _ := host.Title(ptyID)
		return map[string]any{"cwd": cwd, "title": title, "cols": st.Cols, "rows": st.Rows}, nil

	case "getForegroundProcess":
		name, err := foregroundProcessName(host, ptyID)
		if err != nil {
			return nil, notFoundOr(err, "getForegroundProcess")
		}
		return map[string]any{"process": name}, nil

	case "getGitBranch":
		cwd, err := host.Cwd(ptyID)
		if err != nil {
			return nil, notFoundOr(err, "getGitBranch")
		}
		return map[string]any{"branch": gitBranch(cwd)}, nil

	case "getTitle":
		title, err := host.Title(ptyID)
		if err != nil {
			return nil, notFoundOr(err, "getTitle")
		}
		return map[string]any{"title": title}, nil

	case "registerPane":
		host.BindPane(ptyhost.PaneKey{SessionID: fieldString(h.Fields, "sessionId"), PaneID: fieldString(h.Fields, "paneId")}, ptyID)
		return nil, nil

	case "getSessionMapping":
		m := host.GetSessionMapping(fieldString(h.Fields, "sessionId"))
		entries := make([]map[string]any, len(m.Entries))
		for i, e := range m.Entries {
			entries[i] = map[string]any{"paneId": e.PaneID, "ptyId": e.PtyID}
		}
		return map[string]any{"entries": entries, "staleIds": m.StalePaneIDs}, nil

	default:
		return nil, ipcerr.New(ipcerr.Protocol, fmt.Sprintf("unknown method %q", method))
	}
}

func notFoundOr(err error, op string) error {
	if err == ptyhost.ErrNotFound {
		return ipcerr.Wrap(ipcerr.NotFound, op, err)
	}
	return ipcerr.Wrap(ipcerr.Lifecycle, op, err)
}

func parseRGB(s string) [3]uint8 {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return [3]uint8{}
	}
	var out [3]uint8
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return [3]uint8{}
		}
		out[i] = uint8(v)
	}
	return out
}

// foregroundProcessName reads the session's controlling terminal's
// foreground process group leader's command name from /proc, following the
// same "best-effort, swallow errors" discipline the emulator uses for
// malformed guest bytes.
func foregroundProcessName(host *ptyhost.Host, ptyID string) (string, error) {
	pid, err := host.Pid(ptyID)
	if err != nil {
		return "", err
	}
	comm, rerr := exec.Command("ps", "-o", "comm=", "-p", strconv.Itoa(pid)).Output()
	if rerr != nil {
		return "", nil
	}
	return strings.TrimSpace(string(comm)), nil
}

func gitBranch(cwd string) string {
	out, err := exec.Command("git", "-C", cwd, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
