package aio

import (
	"context"
	"time"

	"aio/proactor"
)

// Proactor 异步I/O引擎的上层契约，DNS、TLS等上层只依赖这个接口
type Proactor interface {
	// Bind 把fd登记到引擎，返回后续操作使用的句柄
	Bind(fd int, kind proactor.Kind, hint string) (proactor.ID, error)
	// Submit 提交异步操作，终态通过Operation里的回调恰好投递一次
	Submit(id proactor.ID, op proactor.Operation) error
	// Cancel 取消对象上的在途操作
	Cancel(id proactor.ID) error
	// Unbind 注销对象，fd归调用方管理
	Unbind(id proactor.ID) error
	// Schedule 自由定时器，period大于0表示周期触发
	Schedule(delay, period time.Duration, cb proactor.Callback) (proactor.TimerID, error)
	CancelTimer(id proactor.TimerID) error
	// Shutdown 在途操作按Cancelled收尾并等待所有slot退出
	Shutdown(ctx context.Context) error
	// Faults slot故障通知
	Faults() <-chan proactor.SlotFault
	Stats() []proactor.SlotStats
}

var _ Proactor = (*proactor.Pool)(nil)
