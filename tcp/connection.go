package tcp

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	itcp "aio/interface/tcp"
	"aio/proactor"
	"aio/util/buffer"
)

const (
	// readBufferSize 每条连接的接收缓冲大小
	readBufferSize = 16 * 1024
	// writeBufferSize 出方向环形缓冲的初始容量，不够时自动扩容
	writeBufferSize = 4 * 1024
	// maxSendChunk 单次在途写操作的最大长度
	maxSendChunk = 64 * 1024
)

var _ itcp.Connection = (*Connection)(nil)

// Connection 引擎上的一条连接。接收缓冲只在归属slot的回调里访问，
// 出方向缓冲由mu保护，Write可以来自任意goroutine
type Connection struct {
	srv  *Server
	pool *proactor.Pool
	id   proactor.ID
	fd   int
	peer string

	rbuf []byte

	mu sync.Mutex
	// wring 出方向的环形缓冲，Write只负责追加，发送由slot回调驱动
	wring    *buffer.RingBuffer
	sending  bool
	closed   bool
	released bool
}

func newConnection(srv *Server, fd int) (*Connection, error) {
	id, err := srv.pool.Bind(fd, proactor.Socket, "")
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	peer := "unknown"
	if sa, err := unix.Getpeername(fd); err == nil {
		peer = formatSockaddr(sa)
	}
	return &Connection{
		srv:   srv,
		pool:  srv.pool,
		id:    id,
		fd:    fd,
		peer:  peer,
		rbuf:  buffer.GetBytes(readBufferSize),
		wring: buffer.NewRingBuffer(writeBufferSize),
	}, nil
}

func (c *Connection) beginRead() error {
	return c.pool.Submit(c.id, proactor.Recv(c.rbuf, time.Time{}, c.onRecv))
}

func (c *Connection) onRecv(cm proactor.Completion) {
	if cm.Status != proactor.Success || cm.N == 0 {
		c.doClose()
		return
	}
	c.srv.handler.OnData(c, c.rbuf[:cm.N])
	if c.isClosed() {
		c.doClose()
		return
	}
	if err := c.pool.Submit(c.id, proactor.Recv(c.rbuf, time.Time{}, c.onRecv)); err != nil {
		c.doClose()
	}
}

// Write 把data追加进出方向缓冲并异步写出。引擎里同一时刻至多一个
// 在途写操作，对端不消费导致缓冲超过上限时返回ErrBufferOverflow
func (c *Connection) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosedConnection
	}
	if _, err := c.wring.Write(data); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.sending {
		c.mu.Unlock()
		return nil
	}
	c.sending = true
	chunk := c.wring.Peek(maxSendChunk)
	c.mu.Unlock()
	if err := c.pool.Submit(c.id, proactor.Send(chunk, time.Time{}, c.onSend)); err != nil {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
		return err
	}
	return nil
}

// onSend 写完成后先消费掉内核已接收的部分，短写剩下的字节还留在
// 缓冲头部，下一轮接着发
func (c *Connection) onSend(cm proactor.Completion) {
	if cm.Status != proactor.Success {
		c.doClose()
		return
	}
	c.mu.Lock()
	c.wring.Skip(cm.N)
	if c.wring.Len() == 0 {
		c.sending = false
		c.mu.Unlock()
		return
	}
	chunk := c.wring.Peek(maxSendChunk)
	c.mu.Unlock()
	if err := c.pool.Submit(c.id, proactor.Send(chunk, time.Time{}, c.onSend)); err != nil {
		c.doClose()
	}
}

// Close 请求关闭连接，在途操作按取消收尾，OnClose恰好触发一次
func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	_ = c.pool.Cancel(c.id)
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) Active() bool {
	return !c.isClosed()
}

func (c *Connection) RemoteAddr() string {
	return c.peer
}

func (c *Connection) ID() proactor.ID {
	return c.id
}

// doClose 连接的收尾入口，只在归属slot的回调路径上进入。
// 对向方向还有在途操作时先返回，等它的终态再走一遍
func (c *Connection) doClose() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	_ = c.pool.Cancel(c.id)
	if err := c.pool.Unbind(c.id); err == proactor.ErrObjectBusy {
		return
	}
	c.release()
}

func (c *Connection) release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	rbuf := c.rbuf
	c.rbuf = nil
	c.wring = nil
	c.mu.Unlock()

	_ = unix.Close(c.fd)
	if rbuf != nil {
		buffer.PutBytes(rbuf)
	}
	c.srv.activeConns.Delete(c)
	c.srv.handler.OnClose(c)
}
