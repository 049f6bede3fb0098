package proactor

import (
	"time"

	"golang.org/x/sys/unix"
)

type OpKind uint8

const (
	OpConnect OpKind = iota
	OpAccept
	OpRecv
	OpSend
	OpRead
	OpWrite
	OpSleep
	OpResolve
	// OpTick 周期定时器触发，只出现在Completion中
	OpTick
)

func (k OpKind) String() string {
	switch k {
	case OpConnect:
		return "connect"
	case OpAccept:
		return "accept"
	case OpRecv:
		return "recv"
	case OpSend:
		return "send"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpSleep:
		return "sleep"
	case OpResolve:
		return "resolve"
	case OpTick:
		return "tick"
	default:
		return "unknown"
	}
}

// readClass 读方向包括connect/accept/recv/read/sleep/resolve，
// 写方向只有send/write。connect虽然等待的是可写事件，但占用读方向的名额
func (k OpKind) readClass() bool {
	switch k {
	case OpSend, OpWrite:
		return false
	default:
		return true
	}
}

// Operation 一次异步操作的描述符。Buf在completion回调触发之前归调用方所有，
// 期间不能修改或释放
type Operation struct {
	Kind OpKind
	Buf  []byte
	// Addr connect的目标地址
	Addr unix.Sockaddr
	// Deadline 绝对超时时间，零值表示不超时
	Deadline time.Time
	Callback Callback
}

func Connect(addr unix.Sockaddr, deadline time.Time, cb Callback) Operation {
	return Operation{Kind: OpConnect, Addr: addr, Deadline: deadline, Callback: cb}
}

func Accept(deadline time.Time, cb Callback) Operation {
	return Operation{Kind: OpAccept, Deadline: deadline, Callback: cb}
}

func Recv(buf []byte, deadline time.Time, cb Callback) Operation {
	return Operation{Kind: OpRecv, Buf: buf, Deadline: deadline, Callback: cb}
}

func Send(buf []byte, deadline time.Time, cb Callback) Operation {
	return Operation{Kind: OpSend, Buf: buf, Deadline: deadline, Callback: cb}
}

func Read(buf []byte, deadline time.Time, cb Callback) Operation {
	return Operation{Kind: OpRead, Buf: buf, Deadline: deadline, Callback: cb}
}

func Write(buf []byte, deadline time.Time, cb Callback) Operation {
	return Operation{Kind: OpWrite, Buf: buf, Deadline: deadline, Callback: cb}
}

func Sleep(deadline time.Time, cb Callback) Operation {
	return Operation{Kind: OpSleep, Deadline: deadline, Callback: cb}
}

func Resolve(deadline time.Time, cb Callback) Operation {
	return Operation{Kind: OpResolve, Deadline: deadline, Callback: cb}
}

// validate Submit入口的同步检查
func (op *Operation) validate() error {
	if op.Callback == nil {
		return ErrInvalidArgument
	}
	switch op.Kind {
	case OpConnect:
		if op.Addr == nil {
			return ErrInvalidArgument
		}
	case OpRecv, OpSend, OpRead, OpWrite:
		if len(op.Buf) == 0 {
			return ErrInvalidArgument
		}
	case OpSleep:
		if op.Deadline.IsZero() {
			return ErrInvalidArgument
		}
	case OpAccept, OpResolve:
	default:
		return ErrInvalidArgument
	}
	return nil
}
