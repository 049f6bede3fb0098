package buffer

import (
	"bytes"
	"io"
	"testing"
)

type testCase struct {
	name    string
	write   []byte
	read    []byte
	e       expect
	initCap int
}

type expect struct {
	cap     int
	err     error
	written int
	read    int
}

func TestRingBuffer_Write(t *testing.T) {
	testCases := []testCase{
		{name: "fits", write: []byte("hello"), initCap: 8, e: expect{cap: 8, err: nil, written: 5}},
		{name: "grow-buffer", write: []byte("helloworld"), initCap: 8, e: expect{cap: 16, err: nil, written: 10}},
		{name: "buffer-too-large", write: make([]byte, MaxBufferSize+10), initCap: 2, e: expect{err: ErrBufferOverflow, written: 0, cap: 2}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf := NewRingBuffer(tc.initCap)
			expect := tc.e
			if n, err := buf.Write(tc.write); err != expect.err {
				t.Logf("expect error: %v, got: %v", expect.err, err)
				t.FailNow()
			} else if err == nil && n != expect.written {
				t.Logf("expect written: %v, got: %v", expect.written, n)
				t.FailNow()
			}
			if buf.Cap() != expect.cap {
				t.Logf("expect cap: %v, got: %v", expect.cap, buf.Cap())
				t.FailNow()
			}
		})
	}
}

func TestRingBuffer_Read(t *testing.T) {
	testCases := []testCase{
		{name: "empty", write: []byte{}, read: make([]byte, 4), initCap: 8, e: expect{read: 0, err: io.EOF}},
		{name: "enough-to-read", write: []byte("12345678"), read: make([]byte, 6), initCap: 8, e: expect{read: 6, err: nil}},
		{name: "not-enough-to-read", write: []byte("12345678"), read: make([]byte, 10), initCap: 16, e: expect{read: 8, err: nil}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf := NewRingBuffer(tc.initCap)
			_, _ = buf.Write(tc.write)
			if n, err := buf.Read(tc.read); err != tc.e.err {
				t.Logf("expect error: %v, got: %v", tc.e.err, err)
				t.FailNow()
			} else if n != tc.e.read {
				t.Logf("expect read len: %d, got: %d", tc.e.read, n)
				t.FailNow()
			}
		})
	}
}

func TestRingBuffer_ReadWrap(t *testing.T) {
	buf := NewRingBuffer(8)
	_, _ = buf.Write([]byte("123456"))
	_, _ = buf.Read(make([]byte, 4))
	// write跨越数组末尾形成环形
	if n, err := buf.Write([]byte("abcd")); n != 4 || err != nil {
		t.FailNow()
	}
	out := make([]byte, 6)
	if n, err := buf.Read(out); n != 6 || err != nil {
		t.FailNow()
	} else if string(out) != "56abcd" {
		t.Logf("expect: %s, got: %s", "56abcd", string(out))
		t.FailNow()
	}
	if buf.Len() != 0 {
		t.Fail()
	}
}

func TestRingBuffer_PeekSkip(t *testing.T) {
	buf := NewRingBuffer(8)
	_, _ = buf.Write([]byte("12345678"))

	if p := buf.Peek(4); !bytes.Equal(p, []byte("1234")) {
		t.Logf("expect: %s, got: %s", "1234", string(p))
		t.FailNow()
	}
	if buf.Len() != 8 {
		t.FailNow()
	}
	if n := buf.Skip(6); n != 6 {
		t.FailNow()
	}
	// read指针回绕后peek需要拷贝
	_, _ = buf.Write([]byte("abcd"))
	if p := buf.Peek(6); !bytes.Equal(p, []byte("78abcd")) {
		t.Logf("expect: %s, got: %s", "78abcd", string(p))
		t.FailNow()
	}
	if n := buf.Skip(100); n != 6 {
		t.FailNow()
	}
	if buf.Len() != 0 || buf.Peek(1) != nil {
		t.Fail()
	}
}

func TestRingBuffer_MarkReset(t *testing.T) {
	buf := NewRingBuffer(16)
	_, _ = buf.Write([]byte("hello world"))

	buf.MarkReadIndex()
	_, _ = buf.Read(make([]byte, 6))
	buf.ResetReadIndex()

	out := make([]byte, 11)
	if n, err := buf.Read(out); n != 11 || err != nil {
		t.FailNow()
	} else if string(out) != "hello world" {
		t.Logf("expect: %s, got: %s", "hello world", string(out))
		t.FailNow()
	}
}

func TestRingBuffer_Bytes(t *testing.T) {
	buf := NewRingBuffer(8)
	_, _ = buf.Write([]byte("123456"))
	_ = buf.Skip(4)
	_, _ = buf.Write([]byte("abcd"))

	if !bytes.Equal(buf.Bytes(), []byte("56abcd")) {
		t.Logf("got: %s", string(buf.Bytes()))
		t.FailNow()
	}
	if buf.Len() != 6 {
		t.Fail()
	}
	buf.Reset()
	if buf.Len() != 0 || len(buf.Bytes()) != 0 {
		t.Fail()
	}
}

func TestGetPutBytes(t *testing.T) {
	b := GetBytes(1024)
	if len(b) != 1024 {
		t.FailNow()
	}
	PutBytes(b)

	b = GetBytesCap(16, 4096)
	if len(b) != 16 || cap(b) < 4096 {
		t.FailNow()
	}
	PutBytes(b)
}
