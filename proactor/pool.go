package proactor

import (
	"context"
	"hash/crc32"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"aio/config"
	"aio/util/log"
)

// maxSlots slot编号打包在ID的高8位
const maxSlots = 256

const (
	stateRunning uint32 = iota
	stateShutdown
)

// TimerID 自由定时器句柄，高8位是slot编号
type TimerID uint64

// SlotStats 单个slot的瞬时统计
type SlotStats struct {
	Slot      int
	Objects   int
	InFlight  int64
	Submitted uint64
	Completed uint64
	Halted    bool
}

// Pool proactor门面。固定数量的slot，每个slot一条独立的事件循环，
// 对象绑定后终生不迁移。所有方法可以在任意goroutine上调用
type Pool struct {
	slots     []*slot
	next      uint32
	timerSeq  uint32
	state     uint32
	faults    chan SlotFault
	closeOnce sync.Once
}

// Create 按config.Properties的全局配置创建，slots不大于0时取CPU核数
func Create(slots int) (*Pool, error) {
	props := *config.Properties
	props.Slots = slots
	return CreateWithProperties(&props)
}

func CreateWithProperties(props *config.EngineProperties) (*Pool, error) {
	n := props.Slots
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n > maxSlots {
		return nil, ErrInvalidArgument
	}
	batch := props.EventBatchSize
	if batch <= 0 {
		batch = 1024
	}
	tick := time.Duration(props.TickInterval) * time.Millisecond
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	wheelSize := props.TimeWheelSize
	if wheelSize <= 0 {
		wheelSize = 64
	}
	maxObjects := props.MaxObjects
	if maxObjects <= 0 {
		maxObjects = 1 << 16
	}
	p := &Pool{
		faults: make(chan SlotFault, n),
	}
	for i := 0; i < n; i++ {
		s, err := newSlot(i, batch, tick, wheelSize, maxObjects, p.faults)
		if err != nil {
			for _, prev := range p.slots {
				_ = prev.poller.Close()
			}
			return nil, err
		}
		p.slots = append(p.slots, s)
	}
	for _, s := range p.slots {
		go s.run()
	}
	log.Info("proactor pool started, slots: %d", n)
	return p, nil
}

// Bind 把fd登记到一个slot上，返回后续操作使用的句柄。
// hint相同的对象落在同一个slot，空hint走轮转。fd的生命周期归调用方
func (p *Pool) Bind(fd int, kind Kind, hint string) (ID, error) {
	if fd < 0 {
		return InvalidID, ErrInvalidArgument
	}
	if atomic.LoadUint32(&p.state) != stateRunning {
		return InvalidID, ErrShutdownInProgress
	}
	s, err := p.pick(hint)
	if err != nil {
		return InvalidID, err
	}
	obj, err := s.registry.Register(fd, kind)
	if err != nil {
		return InvalidID, err
	}
	return obj.id, nil
}

func (p *Pool) pick(hint string) (*slot, error) {
	n := uint32(len(p.slots))
	if hint != "" {
		s := p.slots[crc32.ChecksumIEEE([]byte(hint))%n]
		if s.isHalted() {
			return nil, ErrSlotHalted
		}
		return s, nil
	}
	// 轮转，跳过故障slot
	for i := uint32(0); i < n; i++ {
		s := p.slots[atomic.AddUint32(&p.next, 1)%n]
		if !s.isHalted() {
			return s, nil
		}
	}
	return nil, ErrSlotHalted
}

func (p *Pool) slotOf(id ID) (*slot, error) {
	i := id.Slot()
	if i >= len(p.slots) {
		return nil, ErrInvalidObject
	}
	return p.slots[i], nil
}

// Submit 提交一个异步操作。同一方向最多一个在途操作，
// 返回nil之后回调保证恰好触发一次
func (p *Pool) Submit(id ID, op Operation) error {
	if err := op.validate(); err != nil {
		return err
	}
	if atomic.LoadUint32(&p.state) != stateRunning {
		return ErrShutdownInProgress
	}
	s, err := p.slotOf(id)
	if err != nil {
		return err
	}
	obj, err := s.registry.Lookup(id)
	if err != nil {
		return err
	}
	read := op.Kind.readClass()
	if !obj.tryAcquire(read) {
		return ErrAlreadyPending
	}
	if !s.work.Push(func() { s.doSubmit(id, op) }) {
		obj.release(read)
		if s.isHalted() {
			return ErrSlotHalted
		}
		return ErrShutdownInProgress
	}
	atomic.AddUint64(&s.submitted, 1)
	_ = s.poller.Wake()
	return nil
}

// Cancel 请求取消对象上的在途操作，结果在归属slot的循环里异步投递。
// 与自然完成竞争时先到者生效，绝不产生两个终态
func (p *Pool) Cancel(id ID) error {
	if atomic.LoadUint32(&p.state) != stateRunning {
		return ErrShutdownInProgress
	}
	s, err := p.slotOf(id)
	if err != nil {
		return err
	}
	obj, err := s.registry.Lookup(id)
	if err != nil {
		return err
	}
	if !obj.pendingAny() {
		// 没有在途操作，取消是no-op
		return nil
	}
	if !s.work.Push(func() { s.doCancel(id) }) {
		if s.isHalted() {
			return ErrSlotHalted
		}
		return ErrShutdownInProgress
	}
	_ = s.poller.Wake()
	return nil
}

// Unbind 注销对象并使句柄立即失效，fd本身不会被关闭。
// 任一方向有在途操作时拒绝，调用方需要先Cancel并等到终态
func (p *Pool) Unbind(id ID) error {
	if atomic.LoadUint32(&p.state) != stateRunning {
		return ErrShutdownInProgress
	}
	s, err := p.slotOf(id)
	if err != nil {
		return err
	}
	obj, err := s.registry.Lookup(id)
	if err != nil {
		return err
	}
	if obj.pendingAny() {
		return ErrObjectBusy
	}
	if _, err := s.registry.Unregister(id); err != nil {
		return err
	}
	return nil
}

// Schedule 注册一个自由定时器，period大于0表示周期触发。
// 到期走与I/O相同的completion投递路径，Kind为Sleep或Tick
func (p *Pool) Schedule(delay, period time.Duration, cb Callback) (TimerID, error) {
	if cb == nil {
		return 0, ErrInvalidArgument
	}
	if delay < 0 {
		delay = 0
	}
	if atomic.LoadUint32(&p.state) != stateRunning {
		return 0, ErrShutdownInProgress
	}
	s, err := p.pick("")
	if err != nil {
		return 0, err
	}
	seq := atomic.AddUint32(&p.timerSeq, 1)
	if !s.work.Push(func() { s.doSchedule(seq, delay, period, cb) }) {
		if s.isHalted() {
			return 0, ErrSlotHalted
		}
		return 0, ErrShutdownInProgress
	}
	_ = s.poller.Wake()
	return TimerID(uint64(s.index)<<56 | uint64(seq)), nil
}

// CancelTimer 摘除尚未触发的定时器，已触发的一次性定时器上无事发生
func (p *Pool) CancelTimer(id TimerID) error {
	if atomic.LoadUint32(&p.state) != stateRunning {
		return ErrShutdownInProgress
	}
	i := int(id >> 56)
	if i >= len(p.slots) {
		return ErrInvalidArgument
	}
	s := p.slots[i]
	seq := uint32(id)
	if !s.work.Push(func() { s.doCancelTimer(seq) }) {
		if s.isHalted() {
			return ErrSlotHalted
		}
		return ErrShutdownInProgress
	}
	_ = s.poller.Wake()
	return nil
}

// Shutdown 停止接收新任务，在途操作按Cancelled收尾并等待所有slot退出。
// 可以重复调用，后续调用同样等待结束
func (p *Pool) Shutdown(ctx context.Context) error {
	atomic.CompareAndSwapUint32(&p.state, stateRunning, stateShutdown)
	for _, s := range p.slots {
		s.work.Push(s.beginShutdown)
		_ = s.poller.Wake()
	}
	for _, s := range p.slots {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	// poller归Pool收尾，slot退出后fd才能安全关闭
	p.closeOnce.Do(func() {
		for _, s := range p.slots {
			_ = s.poller.Close()
		}
	})
	log.Info("proactor pool stopped")
	return nil
}

// Faults slot故障通知。缓冲区满时丢弃，日志里始终有记录
func (p *Pool) Faults() <-chan SlotFault {
	return p.faults
}

func (p *Pool) Slots() int {
	return len(p.slots)
}

// Stats 各slot的瞬时统计快照
func (p *Pool) Stats() []SlotStats {
	stats := make([]SlotStats, len(p.slots))
	for i, s := range p.slots {
		stats[i] = SlotStats{
			Slot:      i,
			Objects:   s.registry.Len(),
			InFlight:  atomic.LoadInt64(&s.inflight),
			Submitted: atomic.LoadUint64(&s.submitted),
			Completed: atomic.LoadUint64(&s.completed),
			Halted:    s.isHalted(),
		}
	}
	return stats
}
