package tcp

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aio/config"
	"aio/proactor"
)

type echoHandler struct {
	connects chan string
	closes   chan string
}

func newEchoHandler() *echoHandler {
	return &echoHandler{
		connects: make(chan string, 8),
		closes:   make(chan string, 8),
	}
}

func (h *echoHandler) OnConnect(conn *Connection) {
	h.connects <- conn.RemoteAddr()
}

func (h *echoHandler) OnData(conn *Connection, data []byte) {
	_ = conn.Write(data)
}

func (h *echoHandler) OnClose(conn *Connection) {
	h.closes <- conn.RemoteAddr()
}

func newTestServer(t *testing.T) (*Server, *echoHandler) {
	t.Helper()
	props := *config.Properties
	props.Slots = 2
	props.TickInterval = 10
	pool, err := proactor.CreateWithProperties(&props)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, pool.Shutdown(ctx))
	})
	h := newEchoHandler()
	srv := NewServer("127.0.0.1:0", pool, h)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Close)
	return srv, h
}

func awaitEvent(t *testing.T, ch <-chan string, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatalf("%s not fired in time", what)
	}
}

func TestServerEcho(t *testing.T) {
	srv, h := newTestServer(t)

	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	awaitEvent(t, h.connects, "OnConnect")

	payload := []byte("ping from client")
	_, err = conn.Write(payload)
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	got := make([]byte, len(payload))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	// 客户端关闭后服务端读到EOF并触发OnClose
	require.NoError(t, conn.Close())
	awaitEvent(t, h.closes, "OnClose")
}

func TestServerLargeEcho(t *testing.T) {
	srv, h := newTestServer(t)

	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	awaitEvent(t, h.connects, "OnConnect")

	// 超过单条连接的接收缓冲，echo分多段write排队回传
	payload := bytes.Repeat([]byte("0123456789abcdef"), 4096)
	wrote := make(chan error, 1)
	go func() {
		_, werr := conn.Write(payload)
		wrote <- werr
	}()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	got := make([]byte, len(payload))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	require.NoError(t, <-wrote)
	require.Equal(t, payload, got)
}

func TestServerCloseDisconnectsClients(t *testing.T) {
	srv, h := newTestServer(t)

	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	awaitEvent(t, h.connects, "OnConnect")

	srv.Close()
	awaitEvent(t, h.closes, "OnClose")

	// 服务端主动断开，客户端这头读到EOF
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	one := make([]byte, 1)
	_, err = conn.Read(one)
	require.Error(t, err)
}
