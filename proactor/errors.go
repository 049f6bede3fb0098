package proactor

import "errors"

var (
	// ErrInvalidObject 对象不存在、已经关闭或者identity已经过期
	ErrInvalidObject = errors.New("invalid or closed object identity")
	// ErrAlreadyPending 同方向已有一个在途操作
	ErrAlreadyPending = errors.New("operation already pending for this direction")
	// ErrObjectBusy 对象还有在途操作，不能unbind
	ErrObjectBusy = errors.New("object has in-flight operations")
	// ErrExhaustedIdentitySpace registry无法再分配新的identity
	ErrExhaustedIdentitySpace = errors.New("identity space exhausted")
	// ErrShutdownInProgress pool已经开始关闭，拒绝新的提交
	ErrShutdownInProgress = errors.New("pool shutdown in progress")
	// ErrSlotHalted slot因回调panic而停止
	ErrSlotHalted = errors.New("slot loop halted")
	// ErrInvalidArgument 操作描述符缺少必要的字段
	ErrInvalidArgument = errors.New("invalid operation argument")
)
