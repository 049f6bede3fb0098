package buffer

import (
	"io"
)

var _ Buffer = (*RingBuffer)(nil)

type RingBuffer struct {
	buf    []byte
	cap    int // cap 是ring buffer底层数组的大小
	length int // length 是元素个数
	rIdx   int
	wIdx   int

	markIdx int
	markLen int
}

func NewRingBuffer(cap int) *RingBuffer {
	cap = ceilPowerOfTwo(cap)
	return &RingBuffer{
		buf:    make([]byte, cap),
		cap:    cap,
		length: 0,
		rIdx:   0,
		wIdx:   0,
	}
}

func (r *RingBuffer) Read(bytes []byte) (int, error) {
	n := len(bytes)
	if n == 0 {
		return 0, nil
	}
	if r.length == 0 {
		return 0, io.EOF
	}
	if r.length < n {
		n = r.length
	}
	if r.wIdx > r.rIdx {
		copy(bytes, r.buf[r.rIdx:r.rIdx+n])
		r.rIdx += n
	} else {
		r1 := r.cap - r.rIdx
		if n <= r1 {
			copy(bytes, r.buf[r.rIdx:])
			r.rIdx += n
		} else {
			copy(bytes, r.buf[r.rIdx:])
			remain := n - r1
			copy(bytes[r1:], r.buf[0:remain])
			r.rIdx = remain
		}
	}
	if r.rIdx == r.cap {
		r.rIdx = 0
	}
	r.length -= n
	return n, nil
}

func (r *RingBuffer) Write(bytes []byte) (int, error) {
	n := len(bytes)
	if n == 0 {
		return 0, nil
	}
	if r.length+n > MaxBufferSize {
		return 0, ErrBufferOverflow
	}
	if freeSpace := r.cap - r.length; freeSpace < n {
		r.grow(r.length + n)
	}
	if r.wIdx >= r.rIdx {
		cap1 := r.cap - r.wIdx
		if cap1 >= n {
			copy(r.buf[r.wIdx:], bytes)
			r.wIdx += n
		} else {
			copy(r.buf[r.wIdx:], bytes[:cap1])
			remain := n - cap1
			copy(r.buf, bytes[cap1:])
			r.wIdx = remain
		}
	} else {
		copy(r.buf[r.wIdx:], bytes)
		r.wIdx += n
	}
	if r.wIdx == r.cap {
		r.wIdx = 0
	}
	r.length += n
	return n, nil
}

// Peek 返回至多n个可读字节，不移动read指针。
// 数据在底层数组中连续时直接返回切片，出现环形时拷贝
func (r *RingBuffer) Peek(n int) []byte {
	if n <= 0 || r.length == 0 {
		return nil
	}
	if n > r.length {
		n = r.length
	}
	if r.wIdx > r.rIdx || r.rIdx+n <= r.cap {
		return r.buf[r.rIdx : r.rIdx+n]
	}
	bytes := make([]byte, n)
	r1 := r.cap - r.rIdx
	copy(bytes, r.buf[r.rIdx:])
	copy(bytes[r1:], r.buf[0:n-r1])
	return bytes
}

func (r *RingBuffer) Skip(n int) int {
	if n <= 0 {
		return 0
	}
	if r.length < n {
		n = r.length
	}
	r.rIdx = (r.rIdx + n) % r.cap
	r.length -= n
	return n
}

func (r *RingBuffer) ReadByte() (byte, error) {
	if r.length == 0 {
		return 0, io.EOF
	}
	b := r.buf[r.rIdx]
	r.rIdx++
	if r.rIdx == r.cap {
		r.rIdx = 0
	}
	r.length--
	return b, nil
}

func (r *RingBuffer) WriteByte(b byte) error {
	if r.length+1 > MaxBufferSize {
		return ErrBufferOverflow
	}
	if r.cap-r.length == 0 {
		r.grow(r.length + 1)
	}
	r.buf[r.wIdx] = b
	r.wIdx++
	if r.wIdx == r.cap {
		r.wIdx = 0
	}
	r.length++
	return nil
}

func (r *RingBuffer) Len() int {
	return r.length
}

func (r *RingBuffer) Cap() int {
	return r.cap
}

func (r *RingBuffer) MarkReadIndex() {
	r.markIdx = r.rIdx
	r.markLen = r.length
}

func (r *RingBuffer) ResetReadIndex() {
	r.rIdx = r.markIdx
	r.length = r.markLen
}

func (r *RingBuffer) Reset() {
	r.rIdx = 0
	r.wIdx = 0
	r.length = 0
	r.markIdx = 0
	r.markLen = 0
}

func (r *RingBuffer) Bytes() []byte {
	bytes := make([]byte, r.length)
	if r.length == 0 {
		return bytes
	}
	if r.wIdx > r.rIdx {
		copy(bytes, r.buf[r.rIdx:r.wIdx])
	} else {
		r1 := r.cap - r.rIdx
		copy(bytes, r.buf[r.rIdx:])
		copy(bytes[r1:], r.buf[0:r.wIdx])
	}
	return bytes
}

// grow buffer扩容到目标大小
func (r *RingBuffer) grow(target int) {
	var newCap int
	if n := r.cap; n == 0 {
		if target <= EmptyBufferSize {
			newCap = EmptyBufferSize
		} else {
			newCap = ceilPowerOfTwo(target)
		}
	} else {
		double := n << 1
		if double >= target {
			newCap = double
		} else {
			for n < MaxBufferSize && n < target {
				n = n + n>>1
			}
			if n > MaxBufferSize {
				n = MaxBufferSize
			}
			newCap = n
		}
	}
	slice := make([]byte, newCap)
	r.transfer(slice, newCap)
}

// transfer 数据转移，将原来buffer的数据转移到 newSlice 中
func (r *RingBuffer) transfer(newSlice []byte, newSize int) {
	old, oldSize := r.buf, r.cap
	n := r.length
	r.buf, r.cap = newSlice, newSize

	// 如果原来buffer为空，将r和w都改为0
	if n == 0 {
		r.rIdx = 0
		r.wIdx = 0
		return
	}
	// 没有出现环形，wIdx在rIdx之后，将这个范围内的数据拷贝到新的buffer
	if r.rIdx < r.wIdx {
		copy(r.buf, old[r.rIdx:r.wIdx])
		r.wIdx = n
		r.rIdx = 0
	} else {
		// 出现环形，先拷贝rIdx到oldSize，再拷贝0到wIdx
		t := oldSize - r.rIdx
		copy(r.buf, old[r.rIdx:])
		copy(r.buf[t:], old[0:r.wIdx])
		r.wIdx = n
		r.rIdx = 0
	}
	// 扩容后mark失效，回退到新的read位置
	r.markIdx = 0
	r.markLen = n
}

// ceilPowerOfTwo 将给定的size规范化到2的幂次
func ceilPowerOfTwo(target int) int {
	ceil := 2
	for ceil < target {
		ceil = ceil << 1
	}
	return ceil
}

func (r *RingBuffer) Available() int {
	return r.cap - r.length
}
