package tcp

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"aio/proactor"
	"aio/util/log"
)

var ErrClosedConnection = errors.New("connection closed")

// Handler 连接事件回调。OnData的data只在调用期间有效，
// 需要保留时由实现方自行拷贝
type Handler interface {
	OnConnect(conn *Connection)
	OnData(conn *Connection, data []byte)
	OnClose(conn *Connection)
}

// Server 挂在proactor引擎上的TCP服务端。
// accept和所有连接I/O都走异步提交，不额外起goroutine
type Server struct {
	address     string
	pool        *proactor.Pool
	handler     Handler
	fd          int
	id          proactor.ID
	activeConns sync.Map
	closed      uint32
	lonce       sync.Once
}

func NewServer(address string, pool *proactor.Pool, handler Handler) *Server {
	return &Server{
		address: address,
		pool:    pool,
		handler: handler,
		fd:      -1,
	}
}

// Start 建立监听socket并发起第一个accept，非阻塞返回
func (s *Server) Start() error {
	addrPort, err := netip.ParseAddrPort(s.address)
	if err != nil {
		return fmt.Errorf("bad listen address %q: %w", s.address, err)
	}
	if !addrPort.Addr().Is4() {
		return fmt.Errorf("listen address must be IPv4: %q", s.address)
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return err
	}
	sa := &unix.SockaddrInet4{Port: int(addrPort.Port()), Addr: addrPort.Addr().As4()}
	for _, step := range []func() error{
		func() error { return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1) },
		func() error { return unix.Bind(fd, sa) },
		func() error { return unix.Listen(fd, 128) },
		func() error { return unix.SetNonblock(fd, true) },
	} {
		if err := step(); err != nil {
			_ = unix.Close(fd)
			return err
		}
	}
	id, err := s.pool.Bind(fd, proactor.Socket, "")
	if err != nil {
		_ = unix.Close(fd)
		return err
	}
	s.fd = fd
	s.id = id
	if err := s.pool.Submit(id, proactor.Accept(time.Time{}, s.onAccept)); err != nil {
		_ = s.pool.Unbind(id)
		_ = unix.Close(fd)
		return err
	}
	log.Info("tcp server listening on %s", s.Addr())
	return nil
}

// Addr 实际监听地址，端口写0时从这里拿内核分配的结果
func (s *Server) Addr() string {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return s.address
	}
	return formatSockaddr(sa)
}

func (s *Server) onAccept(c proactor.Completion) {
	if atomic.LoadUint32(&s.closed) == 1 || c.Status == proactor.Cancelled {
		s.teardownListener()
		return
	}
	if c.Status != proactor.Success {
		log.Errorf("accept: %v", c.Err)
	} else {
		conn, err := newConnection(s, c.N)
		if err != nil {
			log.Errorf("register connection: %v", err)
		} else {
			log.Debug("connection accepted from %s, object: %d, slot: %d", conn.peer, conn.id, conn.id.Slot())
			s.activeConns.Store(conn, struct{}{})
			s.handler.OnConnect(conn)
			if err := conn.beginRead(); err != nil {
				conn.doClose()
			}
		}
	}
	// 续订下一个连接
	if err := s.pool.Submit(s.id, proactor.Accept(time.Time{}, s.onAccept)); err != nil {
		log.Debug("accept loop stopped: %v", err)
	}
}

// Close 停止accept并关闭所有存活连接，引擎本身不受影响
func (s *Server) Close() {
	if !atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		return
	}
	if s.fd >= 0 {
		_ = s.pool.Cancel(s.id)
	}
	s.activeConns.Range(func(key, _ interface{}) bool {
		key.(*Connection).Close()
		return true
	})
}

func (s *Server) teardownListener() {
	s.lonce.Do(func() {
		_ = s.pool.Unbind(s.id)
		_ = unix.Close(s.fd)
	})
}

func formatSockaddr(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%s]:%d", net.IP(a.Addr[:]).String(), a.Port)
	default:
		return "unknown"
	}
}
