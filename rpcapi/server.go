package rpcapi

import (
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/websocket"
)

// Server hosts the HTTP-RPC and WS-RPC listeners named in spec §5
// over one shared rpc.Server instance registered with the eth and
// debug_bundler namespaces.
type Server struct {
	rpc *rpc.Server

	httpSrv *http.Server
	wsSrv   *http.Server
	upgrader websocket.Upgrader
}

// NewServer builds a Server with eth and debug_bundler registered.
func NewServer(backend *Backend) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("eth", NewEthAPI(backend)); err != nil {
		return nil, err
	}
	if err := srv.RegisterName("debug_bundler", NewDebugBundlerAPI(backend)); err != nil {
		return nil, err
	}
	return &Server{
		rpc: srv,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}, nil
}

// ServeHTTP handles one HTTP-RPC request/response cycle.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.rpc.ServeHTTP(w, r)
}

// ListenAndServeHTTP starts the HTTP-RPC listener on addr, blocking
// until it fails or Shutdown closes it (a close returns nil).
func (s *Server) ListenAndServeHTTP(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s}
	log.Info("rpcapi: HTTP-RPC listening", "addr", addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// ListenAndServeWS starts the WS-RPC listener on addr: every accepted
// connection is upgraded with gorilla/websocket and bridged into the
// shared rpc.Server as an independent JSON-RPC session.
func (s *Server) ListenAndServeWS(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("rpcapi: websocket upgrade failed", "err", err)
			return
		}
		go s.serveWSConn(conn)
	})
	s.wsSrv = &http.Server{Addr: addr, Handler: mux}
	log.Info("rpcapi: WS-RPC listening", "addr", addr)
	err := s.wsSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) serveWSConn(conn *websocket.Conn) {
	defer conn.Close()
	codec := rpc.NewCodec(&wsConn{Conn: conn})
	s.rpc.ServeCodec(codec, 0)
}

// Shutdown closes every listener and the underlying rpc.Server. Open
// connections are closed immediately rather than drained.
func (s *Server) Shutdown() {
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
	if s.wsSrv != nil {
		s.wsSrv.Close()
	}
	s.rpc.Stop()
}

// wsConn adapts a gorilla *websocket.Conn to the io.ReadWriteCloser +
// SetWriteDeadline shape rpc.NewCodec expects, reassembling a stream
// of discrete websocket text frames into the byte stream a JSON codec
// reads incrementally.
type wsConn struct {
	*websocket.Conn
	buf []byte
}

func (c *wsConn) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		c.buf = data
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.Conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	return c.Conn.Close()
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

var _ io.ReadWriteCloser = (*wsConn)(nil)
