//go:build linux

package netpoll

import (
	"fmt"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

type Epoll struct {
	epollFd int
	// wakeFd eventfd，跨线程唤醒epoll_wait
	wakeFd  int
	events  []unix.EpollEvent
	buf     []byte
	trigger uint32
}

func Open(batchSize int) (Poller, error) {
	if batchSize <= 0 {
		batchSize = 1024
	}
	epollFd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create error: %w", err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epollFd)
		return nil, fmt.Errorf("eventfd create error: %w", err)
	}
	event := &unix.EpollEvent{Events: unix.EPOLLIN}
	*(*uint64)(unsafe.Pointer(&event.Fd)) = WakeToken
	if err := unix.EpollCtl(epollFd, unix.EPOLL_CTL_ADD, wakeFd, event); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(epollFd)
		return nil, fmt.Errorf("register wake eventfd error: %w", err)
	}
	return &Epoll{
		epollFd: epollFd,
		wakeFd:  wakeFd,
		events:  make([]unix.EpollEvent, batchSize),
		buf:     make([]byte, 8),
	}, nil
}

func (p *Epoll) Arm(fd int, token uint64, interest Interest) error {
	if token == WakeToken {
		return ErrReservedToken
	}
	return p.ctl(unix.EPOLL_CTL_ADD, fd, token, interest)
}

func (p *Epoll) Rearm(fd int, token uint64, interest Interest) error {
	if token == WakeToken {
		return ErrReservedToken
	}
	return p.ctl(unix.EPOLL_CTL_MOD, fd, token, interest)
}

func (p *Epoll) Disarm(fd int) error {
	// 未注册时是no-op
	if err := unix.EpollCtl(p.epollFd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && err != unix.ENOENT {
		return err
	}
	return nil
}

func (p *Epoll) ctl(op int, fd int, token uint64, interest Interest) error {
	event := &unix.EpollEvent{Events: epollEvents(interest)}
	// token塞进Fd+Pad的8个字节，事件返回时取出
	*(*uint64)(unsafe.Pointer(&event.Fd)) = token
	if err := unix.EpollCtl(p.epollFd, op, fd, event); err != nil {
		// 普通文件不支持epoll
		if err == unix.EPERM {
			return ErrNotPollable
		}
		return err
	}
	return nil
}

// epollEvents 水平触发，方向对应的事件掩码。EPOLLRDHUP始终开启，
// 对端关闭时不依赖读写兴趣也能得到通知
func epollEvents(interest Interest) uint32 {
	var events uint32 = unix.EPOLLRDHUP
	if interest&Readable != 0 {
		events |= unix.EPOLLIN
	}
	if interest&Writable != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

func (p *Epoll) Wait(events []Event, msec int) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	batch := p.events
	if len(events) < len(batch) {
		batch = batch[:len(events)]
	}
	n, err := epollWait(p.epollFd, batch, msec)
	if err != nil {
		if err == syscall.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait error: %w", err)
	}
	out := 0
	for i := 0; i < n; i++ {
		ev := &batch[i]
		token := *(*uint64)(unsafe.Pointer(&ev.Fd))
		if token == WakeToken {
			// must clean trigger first
			_, _ = unix.Read(p.wakeFd, p.buf)
			atomic.StoreUint32(&p.trigger, 0)
			continue
		}
		events[out] = Event{
			Token:    token,
			Readable: ev.Events&unix.EPOLLIN != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			Hup:      ev.Events&(unix.EPOLLRDHUP|unix.EPOLLHUP) != 0,
			Err:      ev.Events&unix.EPOLLERR != 0,
		}
		out++
	}
	return out, nil
}

func (p *Epoll) Wake() error {
	// 唤醒去重，已有未消费的唤醒时不再写入
	if atomic.AddUint32(&p.trigger, 1) > 1 {
		return nil
	}
	for {
		_, err := unix.Write(p.wakeFd, []byte{0, 0, 0, 0, 0, 0, 0, 1})
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil
		}
		return err
	}
}

func (p *Epoll) Close() error {
	_ = unix.Close(p.wakeFd)
	return unix.Close(p.epollFd)
}

// epollWait 封装EpollWait系统调用，msec为0时使用RawSyscall避免runtime调度开销
func epollWait(epfd int, events []unix.EpollEvent, msec int) (n int, err error) {
	var r0 uintptr
	var _p0 = unsafe.Pointer(&events[0])
	if msec == 0 {
		r0, _, err = syscall.RawSyscall6(syscall.SYS_EPOLL_WAIT, uintptr(epfd), uintptr(_p0), uintptr(len(events)), 0, 0, 0)
	} else {
		r0, _, err = syscall.Syscall6(syscall.SYS_EPOLL_WAIT, uintptr(epfd), uintptr(_p0), uintptr(len(events)), uintptr(msec), 0, 0)
	}
	if err == syscall.Errno(0) {
		err = nil
	}
	return int(r0), err
}
