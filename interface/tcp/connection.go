package tcp

import "aio/proactor"

// Connection 引擎上的一条TCP连接，I/O全部异步完成
type Connection interface {
	// Write 拷贝data并异步写出，可以在任意goroutine上调用
	Write(data []byte) error
	// Close 请求关闭，在途操作按取消收尾
	Close()
	RemoteAddr() string
	// ID 引擎内的对象句柄
	ID() proactor.ID
	Active() bool
}
