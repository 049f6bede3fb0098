package proactor

import (
	"sync"
	"sync/atomic"

	"aio/netpoll"
	"aio/util/timewheel"
)

// ID 对象句柄。0是非法值，打包格式:
// 高8位slot编号，中间24位generation，低32位arena下标。
// generation从1开始，保证合法ID永远不为0
type ID uint64

const InvalidID ID = 0

const maxGeneration = 1<<24 - 1

func makeID(slot int, gen uint32, index uint32) ID {
	return ID(uint64(slot)<<56 | uint64(gen)<<32 | uint64(index))
}

// Slot 返回对象归属的slot编号
func (id ID) Slot() int {
	return int(id >> 56)
}

func (id ID) generation() uint32 {
	return uint32(id>>32) & maxGeneration
}

func (id ID) index() uint32 {
	return uint32(id)
}

// Kind 对象背后fd的类型。普通文件无法注册到epoll，按永远就绪处理
type Kind uint8

const (
	Socket Kind = iota
	File
	Pipe
)

func (k Kind) String() string {
	switch k {
	case Socket:
		return "socket"
	case File:
		return "file"
	case Pipe:
		return "pipe"
	default:
		return "unknown"
	}
}

type State uint8

const (
	Idle State = iota
	Pending
	Cancelling
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Cancelling:
		return "cancelling"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// pendingOp 某个方向上在途的操作
type pendingOp struct {
	op Operation
	// timerID 超时任务的句柄，0表示没有超时
	timerID timewheel.TaskID
}

// object 注册到引擎的一个fd。readPending/writePending由提交线程CAS抢占，
// 其余字段只在归属slot的goroutine上读写
type object struct {
	id   ID
	fd   int
	kind Kind

	state State
	// alwaysReady 不注册poller，每轮循环直接执行
	alwaysReady bool
	// armed 当前在poller上挂的兴趣集合
	armed netpoll.Interest

	readOp  *pendingOp
	writeOp *pendingOp

	// cancelRead/cancelWrite 取消请求先于提交闭包到达时的标记，
	// 由提交闭包消费
	cancelRead  bool
	cancelWrite bool

	readPending  uint32
	writePending uint32
}

// tryAcquire 抢占一个方向的提交名额，失败表示该方向已有在途操作
func (o *object) tryAcquire(read bool) bool {
	if read {
		return atomic.CompareAndSwapUint32(&o.readPending, 0, 1)
	}
	return atomic.CompareAndSwapUint32(&o.writePending, 0, 1)
}

func (o *object) release(read bool) {
	if read {
		atomic.StoreUint32(&o.readPending, 0)
		return
	}
	atomic.StoreUint32(&o.writePending, 0)
}

func (o *object) pendingAny() bool {
	return atomic.LoadUint32(&o.readPending) != 0 || atomic.LoadUint32(&o.writePending) != 0
}

// transition 迁移对象状态。合法迁移:
// Idle -> Pending/Closed
// Pending -> Idle/Cancelling/Closed
// Cancelling -> Idle/Pending/Closed
// Closed是终态。原地迁移视为合法
func (o *object) transition(to State) bool {
	if o.state == to {
		return true
	}
	legal := false
	switch o.state {
	case Idle:
		legal = to == Pending || to == Closed
	case Pending:
		legal = to == Idle || to == Cancelling || to == Closed
	case Cancelling:
		legal = to == Idle || to == Pending || to == Closed
	}
	if legal {
		o.state = to
	}
	return legal
}

type entry struct {
	gen uint32
	obj *object
}

// Registry 单个slot的对象表。Register/Unregister持写锁，
// Lookup持读锁，对象内部字段不受锁保护
type Registry struct {
	mu         sync.RWMutex
	slot       int
	entries    []entry
	free       []uint32
	maxObjects int
	count      int
}

func NewRegistry(slot int, maxObjects int) *Registry {
	return &Registry{
		slot:       slot,
		maxObjects: maxObjects,
	}
}

// Register 分配一个ID并建立对象。下标优先复用空闲位
func (r *Registry) Register(fd int, kind Kind) (*object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		if len(r.entries) >= r.maxObjects {
			return nil, ErrExhaustedIdentitySpace
		}
		idx = uint32(len(r.entries))
		r.entries = append(r.entries, entry{gen: 1})
	}
	e := &r.entries[idx]
	obj := &object{
		id:          makeID(r.slot, e.gen, idx),
		fd:          fd,
		kind:        kind,
		state:       Idle,
		alwaysReady: kind == File,
	}
	e.obj = obj
	r.count++
	return obj, nil
}

// Lookup 按ID取对象，generation不匹配说明句柄已经失效
func (r *Registry) Lookup(id ID) (*object, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := id.index()
	if idx >= uint32(len(r.entries)) {
		return nil, ErrInvalidObject
	}
	e := &r.entries[idx]
	if e.obj == nil || e.gen != id.generation() {
		return nil, ErrInvalidObject
	}
	return e.obj, nil
}

// Unregister 摘除对象并递增generation，使旧ID立即失效。
// generation耗尽的下标直接废弃，不再进入空闲列表
func (r *Registry) Unregister(id ID) (*object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := id.index()
	if idx >= uint32(len(r.entries)) {
		return nil, ErrInvalidObject
	}
	e := &r.entries[idx]
	if e.obj == nil || e.gen != id.generation() {
		return nil, ErrInvalidObject
	}
	obj := e.obj
	e.obj = nil
	e.gen++
	if e.gen <= maxGeneration {
		r.free = append(r.free, idx)
	}
	r.count--
	return obj, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Snapshot 拷贝当前所有存活对象，调用方遍历期间可以自由操作registry
func (r *Registry) Snapshot() []*object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	objs := make([]*object, 0, r.count)
	for i := range r.entries {
		if r.entries[i].obj != nil {
			objs = append(objs, r.entries[i].obj)
		}
	}
	return objs
}
