package buffer

import (
	"github.com/bytedance/gopkg/lang/mcache"
)

// GetBytes 从mcache分配一个长度为size的切片，用完必须调用 PutBytes 归还
func GetBytes(size int) []byte {
	return mcache.Malloc(size)
}

// GetBytesCap 分配长度size、容量至少capacity的切片
func GetBytesCap(size, capacity int) []byte {
	return mcache.Malloc(size, capacity)
}

func PutBytes(buf []byte) {
	mcache.Free(buf)
}
