package proactor

type Status uint8

const (
	Success Status = iota
	Failure
	Cancelled
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Completion 一次操作的终态，每个提交的操作有且只有一个
type Completion struct {
	// ID 操作所属对象，独立定时器的completion中为InvalidID
	ID   ID
	Kind OpKind
	// Status 终态类别，Err只在Failure时有值
	Status Status
	// N Recv/Send等操作搬运的字节数，Accept时是新连接的fd
	N   int
	Err error
}

// Callback 完成回调，在对象所属slot的循环goroutine中执行。
// 回调里可以继续Submit/Cancel，但不要做阻塞操作
type Callback func(Completion)
