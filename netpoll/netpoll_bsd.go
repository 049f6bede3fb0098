//go:build darwin || freebsd

package netpoll

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

type armState struct {
	token    uint64
	interest Interest
}

type Kqueue struct {
	kqueueFd int
	// pipeFDs 自唤醒管道，0读1写
	pipeFDs [2]int
	events  []unix.Kevent_t
	// armed 记录每个fd注册的token和方向，kevent本身不携带用户数据
	armed   map[int]armState
	buf     []byte
	trigger uint32
}

func Open(batchSize int) (Poller, error) {
	if batchSize <= 0 {
		batchSize = 1024
	}
	kqueueFd, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue create error: %w", err)
	}
	var pipeFDs [2]int
	if err := unix.Pipe(pipeFDs[:]); err != nil {
		_ = unix.Close(kqueueFd)
		return nil, fmt.Errorf("wake pipe error: %w", err)
	}
	for _, fd := range pipeFDs {
		if err := unix.SetNonblock(fd, true); err != nil {
			closeAll(kqueueFd, pipeFDs)
			return nil, err
		}
	}
	_, err = unix.Kevent(kqueueFd, []unix.Kevent_t{{
		Ident:  uint64(pipeFDs[0]),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD,
	}}, nil, nil)
	if err != nil {
		closeAll(kqueueFd, pipeFDs)
		return nil, fmt.Errorf("register wake pipe error: %w", err)
	}
	return &Kqueue{
		kqueueFd: kqueueFd,
		pipeFDs:  pipeFDs,
		events:   make([]unix.Kevent_t, batchSize),
		armed:    make(map[int]armState),
		buf:      make([]byte, 8),
	}, nil
}

func closeAll(kqueueFd int, pipeFDs [2]int) {
	_ = unix.Close(pipeFDs[0])
	_ = unix.Close(pipeFDs[1])
	_ = unix.Close(kqueueFd)
}

func (p *Kqueue) Arm(fd int, token uint64, interest Interest) error {
	if token == WakeToken {
		return ErrReservedToken
	}
	if _, exists := p.armed[fd]; exists {
		return unix.EEXIST
	}
	if err := p.apply(fd, 0, interest); err != nil {
		return err
	}
	p.armed[fd] = armState{token: token, interest: interest}
	return nil
}

func (p *Kqueue) Rearm(fd int, token uint64, interest Interest) error {
	if token == WakeToken {
		return ErrReservedToken
	}
	prev, exists := p.armed[fd]
	if !exists {
		return unix.ENOENT
	}
	if err := p.apply(fd, prev.interest, interest); err != nil {
		return err
	}
	p.armed[fd] = armState{token: token, interest: interest}
	return nil
}

func (p *Kqueue) Disarm(fd int) error {
	prev, exists := p.armed[fd]
	if !exists {
		return nil
	}
	delete(p.armed, fd)
	return p.apply(fd, prev.interest, 0)
}

// apply 根据前后方向的差异生成kevent变更，每个方向是独立的filter
func (p *Kqueue) apply(fd int, from, to Interest) error {
	var changes []unix.Kevent_t
	if from&Readable == 0 && to&Readable != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD})
	}
	if from&Readable != 0 && to&Readable == 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
	}
	if from&Writable == 0 && to&Writable != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD})
	}
	if from&Writable != 0 && to&Writable == 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kqueueFd, changes, nil, nil)
	return err
}

func (p *Kqueue) Wait(events []Event, msec int) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	batch := p.events
	if len(events) < len(batch) {
		batch = batch[:len(events)]
	}
	var timeout *unix.Timespec
	if msec >= 0 {
		ts := unix.NsecToTimespec(int64(msec) * 1e6)
		timeout = &ts
	}
	n, err := unix.Kevent(p.kqueueFd, nil, batch, timeout)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("kevent wait error: %w", err)
	}
	out := 0
	for i := 0; i < n; i++ {
		ev := &batch[i]
		fd := int(ev.Ident)
		if fd == p.pipeFDs[0] {
			// must clean trigger first
			_, _ = unix.Read(p.pipeFDs[0], p.buf)
			atomic.StoreUint32(&p.trigger, 0)
			continue
		}
		state, ok := p.armed[fd]
		if !ok {
			continue
		}
		events[out] = Event{
			Token:    state.token,
			Readable: ev.Filter == unix.EVFILT_READ,
			Writable: ev.Filter == unix.EVFILT_WRITE,
			Hup:      ev.Flags&unix.EV_EOF != 0,
			Err:      ev.Flags&unix.EV_ERROR != 0,
		}
		out++
	}
	return out, nil
}

func (p *Kqueue) Wake() error {
	// 唤醒去重，已有未消费的唤醒时不再写入
	if atomic.AddUint32(&p.trigger, 1) > 1 {
		return nil
	}
	for {
		_, err := unix.Write(p.pipeFDs[1], []byte{0})
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil
		}
		return err
	}
}

func (p *Kqueue) Close() error {
	_ = unix.Close(p.pipeFDs[0])
	_ = unix.Close(p.pipeFDs[1])
	return unix.Close(p.kqueueFd)
}
