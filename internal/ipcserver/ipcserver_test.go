package ipcserver

import (
	"net"
	"testing"
	"time"

	"termcore/internal/framing"
	"termcore/internal/ptyhost"
	"termcore/internal/version"
)

// pipeClient wraps one side of a net.Pipe with a framing.Reader so tests can
// send requests and read back exactly one frame at a time.
type pipeClient struct {
	conn   net.Conn
	reader *framing.Reader
}

func newPipeClient(conn net.Conn) *pipeClient {
	return &pipeClient{conn: conn, reader: framing.NewReader()}
}

func (p *pipeClient) send(h framing.Header, payloads ...[]byte) {
	framing.WriteFrame(p.conn, h, payloads...)
}

func (p *pipeClient) recv(t *testing.T) framing.Frame {
	t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	for {
		n, err := p.conn.Read(buf)
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		frames, ferr := p.reader.Feed(buf[:n])
		if ferr != nil {
			t.Fatalf("recv: %v", ferr)
		}
		if len(frames) > 0 {
			return frames[0]
		}
	}
}

func newTestServer() *Server {
	return New(ptyhost.New("/bin/sh"))
}

func TestServer_HelloPromotesFirstClient(t *testing.T) {
	s := newTestServer()
	server, client := net.Pipe()
	go s.handleConn(server)
	defer client.Close()

	pc := newPipeClient(client)
	pc.send(framing.Header{Type: framing.TypeRequest, RequestID: "1", Method: "hello", Fields: map[string]any{"clientId": "A"}})
	resp := pc.recv(t)
	if !resp.Header.OK {
		t.Fatalf("expected ok hello response, got %+v", resp.Header)
	}
	if got := resp.Header.Fields["hostVersion"]; got != version.DisplayVersion() {
		t.Fatalf("expected hostVersion %q, got %v", version.DisplayVersion(), got)
	}
}

func TestServer_NonHelloFirstFrameRejected(t *testing.T) {
	s := newTestServer()
	server, client := net.Pipe()
	go s.handleConn(server)
	defer client.Close()

	pc := newPipeClient(client)
	pc.send(framing.Header{Type: framing.TypeRequest, RequestID: "1", Method: "listAll"})
	resp := pc.recv(t)
	if resp.Header.OK {
		t.Fatal("expected rejection for non-hello first frame")
	}
}

func TestServer_SecondHelloRevokesFirst(t *testing.T) {
	s := newTestServer()
	serverA, clientA := net.Pipe()
	go s.handleConn(serverA)
	defer clientA.Close()

	a := newPipeClient(clientA)
	a.send(framing.Header{Type: framing.TypeRequest, RequestID: "1", Method: "hello", Fields: map[string]any{"clientId": "A"}})
	a.recv(t)

	serverB, clientB := net.Pipe()
	go s.handleConn(serverB)
	defer clientB.Close()

	b := newPipeClient(clientB)
	b.send(framing.Header{Type: framing.TypeRequest, RequestID: "1", Method: "hello", Fields: map[string]any{"clientId": "B"}})
	bResp := b.recv(t)
	if !bResp.Header.OK {
		t.Fatalf("expected B to attach, got %+v", bResp.Header)
	}

	detached := a.recv(t)
	if detached.Header.Type != framing.TypeDetached {
		t.Fatalf("expected A to receive detached, got %+v", detached.Header)
	}
}

func TestServer_RevokedClientRejectedOnReconnect(t *testing.T) {
	s := newTestServer()
	serverA, clientA := net.Pipe()
	go s.handleConn(serverA)
	defer clientA.Close()
	a := newPipeClient(clientA)
	a.send(framing.Header{Type: framing.TypeRequest, RequestID: "1", Method: "hello", Fields: map[string]any{"clientId": "A"}})
	a.recv(t)

	serverB, clientB := net.Pipe()
	go s.handleConn(serverB)
	defer clientB.Close()
	b := newPipeClient(clientB)
	b.send(framing.Header{Type: framing.TypeRequest, RequestID: "1", Method: "hello", Fields: map[string]any{"clientId": "B"}})
	b.recv(t)
	a.recv(t) // drain A's detached frame

	serverA2, clientA2 := net.Pipe()
	go s.handleConn(serverA2)
	defer clientA2.Close()
	a2 := newPipeClient(clientA2)
	a2.send(framing.Header{Type: framing.TypeRequest, RequestID: "2", Method: "hello", Fields: map[string]any{"clientId": "A"}})
	resp := a2.recv(t)
	if resp.Header.OK || resp.Header.Error != "Client is detached" {
		t.Fatalf("expected revoked rejection, got %+v", resp.Header)
	}
}

func TestServer_UnknownMethodReturnsError(t *testing.T) {
	s := newTestServer()
	server, client := net.Pipe()
	go s.handleConn(server)
	defer client.Close()

	pc := newPipeClient(client)
	pc.send(framing.Header{Type: framing.TypeRequest, RequestID: "1", Method: "hello", Fields: map[string]any{"clientId": "A"}})
	pc.recv(t)

	pc.send(framing.Header{Type: framing.TypeRequest, RequestID: "2", Method: "bogus"})
	resp := pc.recv(t)
	if resp.Header.OK {
		t.Fatal("expected error for unknown method")
	}
}

func TestServer_ListAllOnEmptyHost(t *testing.T) {
	s := newTestServer()
	server, client := net.Pipe()
	go s.handleConn(server)
	defer client.Close()

	pc := newPipeClient(client)
	pc.send(framing.Header{Type: framing.TypeRequest, RequestID: "1", Method: "hello", Fields: map[string]any{"clientId": "A"}})
	pc.recv(t)

	pc.send(framing.Header{Type: framing.TypeRequest, RequestID: "2", Method: "listAll"})
	resp := pc.recv(t)
	if !resp.Header.OK {
		t.Fatalf("expected ok, got %+v", resp.Header)
	}
	ids, _ := resp.Header.Fields["ptyIds"].([]any)
	if len(ids) != 0 {
		t.Fatalf("expected no ptys, got %v", ids)
	}
}

func TestServer_CreateThenGetSessionByPtyIdField(t *testing.T) {
	s := newTestServer()
	server, client := net.Pipe()
	go s.handleConn(server)
	defer client.Close()

	pc := newPipeClient(client)
	pc.send(framing.Header{Type: framing.TypeRequest, RequestID: "1", Method: "hello", Fields: map[string]any{"clientId": "A"}})
	pc.recv(t)

	pc.send(framing.Header{Type: framing.TypeRequest, RequestID: "2", Method: "createPty", Fields: map[string]any{"cols": float64(80), "rows": float64(24)}})
	created := pc.recv(t)
	if !created.Header.OK {
		t.Fatalf("createPty failed: %+v", created.Header)
	}
	ptyID, _ := created.Header.Fields["ptyId"].(string)
	if ptyID == "" {
		t.Fatal("expected a ptyId in the createPty response")
	}

	pc.send(framing.Header{Type: framing.TypeRequest, RequestID: "3", Method: "getSession", Fields: map[string]any{"ptyId": ptyID}})
	resp := pc.recv(t)
	if !resp.Header.OK {
		t.Fatalf("getSession failed: %+v", resp.Header)
	}
	if cols, _ := resp.Header.Fields["cols"].(float64); int(cols) != 80 {
		t.Fatalf("expected cols=80, got %+v", resp.Header.Fields)
	}

	s.host.Destroy(ptyID)
}
