package netpoll

import "errors"

type Interest uint32

const (
	Readable Interest = 1 << iota
	Writable
)

// WakeToken 是唤醒fd专用的token，Arm拒绝使用这个值注册
const WakeToken uint64 = 0

var (
	ErrNotPollable   = errors.New("fd not pollable")
	ErrReservedToken = errors.New("token reserved for poller wakeup")
)

// Event 是一次就绪通知，Token是Arm时注册的标识
type Event struct {
	Token    uint64
	Readable bool
	Writable bool
	Hup      bool
	Err      bool
}

type Poller interface {
	// Arm 注册fd，token在事件触发时原样返回
	Arm(fd int, token uint64, interest Interest) error
	// Rearm 修改已注册fd关注的方向
	Rearm(fd int, token uint64, interest Interest) error
	// Disarm 取消注册，fd未注册时是no-op
	Disarm(fd int) error
	// Wait 等待就绪事件填充到events。msec为-1时阻塞等待，0立即返回，
	// 大于0最多等待msec毫秒。被信号打断时返回(0, nil)
	Wait(events []Event, msec int) (int, error)
	// Wake 打断一次阻塞中的Wait，可以在任意goroutine调用
	Wake() error
	Close() error
}
