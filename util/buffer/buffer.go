package buffer

import "errors"

type Buffer interface {
	// Read from buffer, this method extends io.Reader
	Read([]byte) (int, error)
	// Write bytes to buffer, io.Writer
	Write([]byte) (int, error)
	// Peek 读取至多n个字节但不移动read指针
	Peek(n int) []byte
	// Skip 丢弃至多n个已缓存的字节，返回实际丢弃的数量
	Skip(n int) int

	Len() int
	Cap() int
	// MarkReadIndex 记录当前read指针位置，可以通过reset回溯
	MarkReadIndex()
	// ResetReadIndex 重置read指针到上次mark的位置
	ResetReadIndex()
	// Reset 清空整个buffer
	Reset()
	Bytes() []byte
}

const (
	EmptyBufferSize = 8
	MaxBufferSize   = 16 * 1024 * 1024
)

var (
	ErrBufferOverflow = errors.New("buffer overflows")
	ErrUnexpectedEOF  = errors.New("unexpected EOF")
)
