package proactor

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"aio/netpoll"
	"aio/util/log"
	"aio/util/timewheel"
)

// SlotFault 回调panic或者poller失效时上报给Pool的故障
type SlotFault struct {
	Slot int
	Err  error
}

// readyEntry 不挂poller、在循环里直接执行的在途操作
type readyEntry struct {
	obj  *object
	p    *pendingOp
	read bool
}

// delivery 推迟到投递阶段的completion
type delivery struct {
	obj *object
	cb  Callback
	c   Completion
}

// slot 一个独立的事件循环，独占poller、registry和时间轮。
// 除了标注原子访问的字段，其余字段只在slot自己的goroutine上读写
type slot struct {
	index    int
	poller   netpoll.Poller
	registry *Registry
	wheel    *timewheel.TimeWheel
	work     *workQueue

	events   []netpoll.Event
	ready    []readyEntry
	deferred []delivery

	// timers 自由定时器序号到轮上任务的映射
	timers map[uint32]timewheel.TaskID

	stopping bool
	// lastWait 上一轮Wait返回的事件数，有事件时下一轮先非阻塞重试
	lastWait int

	// halted 原子访问
	halted uint32

	// inflight/submitted/completed 原子访问的统计量
	inflight  int64
	submitted uint64
	completed uint64

	faults chan<- SlotFault
	done   chan struct{}
}

func newSlot(index int, batch int, tick time.Duration, wheelSize int, maxObjects int, faults chan<- SlotFault) (*slot, error) {
	poller, err := netpoll.Open(batch)
	if err != nil {
		return nil, err
	}
	return &slot{
		index:    index,
		poller:   poller,
		registry: NewRegistry(index, maxObjects),
		wheel:    timewheel.NewTimeWheel(tick, wheelSize),
		work:     newWorkQueue(),
		events:   make([]netpoll.Event, batch),
		timers:   make(map[uint32]timewheel.TaskID),
		faults:   faults,
		done:     make(chan struct{}),
	}, nil
}

func (s *slot) isHalted() bool {
	return atomic.LoadUint32(&s.halted) != 0
}

// halt slot停止服务，该slot上尚未完成的操作不会再有completion。
// 重启还是整体关闭由Pool的使用方决定
func (s *slot) halt(err error) {
	if !atomic.CompareAndSwapUint32(&s.halted, 0, 1) {
		return
	}
	s.work.Close()
	log.Errorf("slot %d halted: %v", s.index, err)
	select {
	case s.faults <- SlotFault{Slot: s.index, Err: err}:
	default:
	}
}

func (s *slot) run() {
	defer close(s.done)
	log.Debug("slot %d started", s.index)
	for !s.isHalted() {
		if s.stopping && s.quiescent() {
			break
		}
		s.runOnce()
	}
	log.Debug("slot %d stopped", s.index)
}

// quiescent 队列排空且没有在途操作，关闭流程可以结束
func (s *slot) quiescent() bool {
	return s.work.Len() == 0 && len(s.deferred) == 0 && len(s.ready) == 0 &&
		atomic.LoadInt64(&s.inflight) == 0
}

func (s *slot) runOnce() {
	// 先推进时间轮再执行提交闭包，新登记的截止时间
	// 以对齐后的轮位置为基准
	s.wheel.Advance(time.Now())
	if s.isHalted() {
		return
	}
	// 跨goroutine提交的闭包
	s.work.Drain()
	s.runReady()
	if s.isHalted() {
		return
	}
	s.deliver()
	if s.isHalted() {
		return
	}
	msec := s.waitMsec()
	n, err := s.poller.Wait(s.events, msec)
	if err != nil {
		s.halt(fmt.Errorf("poller wait: %w", err))
		return
	}
	s.lastWait = n
	for i := 0; i < n; i++ {
		s.dispatch(s.events[i])
		if s.isHalted() {
			return
		}
	}
	if n == 0 && msec == 0 {
		runtime.Gosched()
	}
}

// waitMsec 本轮Wait的超时上限。关闭流程不阻塞，上一轮有事件先非阻塞重试，
// 否则等到时间轮的下一个tick
func (s *slot) waitMsec() int {
	if s.stopping || s.lastWait > 0 {
		return 0
	}
	msec := -1
	if d, ok := s.wheel.Next(time.Now()); ok {
		// 向上取整，宁可晚醒不能早醒
		msec = int((d + time.Millisecond - 1) / time.Millisecond)
	}
	if len(s.ready) > 0 {
		tick := int(s.wheel.Interval() / time.Millisecond)
		if tick < 1 {
			tick = 1
		}
		if msec < 0 || msec > tick {
			msec = tick
		}
	}
	return msec
}

func (s *slot) runReady() {
	if len(s.ready) == 0 {
		return
	}
	batch := s.ready
	s.ready = nil
	for _, e := range batch {
		cur := e.obj.writeOp
		if e.read {
			cur = e.obj.readOp
		}
		// 操作可能已经完成或者被取消
		if cur != e.p {
			continue
		}
		s.execute(e.obj, e.p)
		if s.isHalted() {
			return
		}
	}
}

func (s *slot) deliver() {
	if len(s.deferred) == 0 {
		return
	}
	batch := s.deferred
	s.deferred = nil
	for i := range batch {
		d := &batch[i]
		if d.obj != nil {
			s.settle(d.obj)
		}
		s.invoke(d.cb, d.c)
		if s.isHalted() {
			return
		}
	}
}

func (s *slot) dispatch(ev netpoll.Event) {
	obj, err := s.registry.Lookup(ID(ev.Token))
	if err != nil {
		// 对象已注销，迟到的事件直接丢弃
		return
	}
	fault := ev.Hup || ev.Err
	if p := obj.readOp; p != nil {
		if p.op.Kind == OpConnect {
			if ev.Writable || fault {
				s.execute(obj, p)
			}
		} else if p.op.Kind != OpSleep && (ev.Readable || fault) {
			s.execute(obj, p)
		}
	}
	if s.isHalted() {
		return
	}
	if p := obj.writeOp; p != nil && (ev.Writable || fault) {
		s.execute(obj, p)
	}
}

// execute 就绪之后执行真正的系统调用并投递结果，proactor语义的落点
func (s *slot) execute(obj *object, p *pendingOp) {
	switch p.op.Kind {
	case OpConnect:
		s.finishConnect(obj, p)
	case OpAccept:
		s.doAccept(obj, p)
	case OpRecv, OpRead:
		s.doRead(obj, p)
	case OpSend, OpWrite:
		s.doWrite(obj, p)
	case OpResolve:
		// 解析层自己消费可读数据，这里只报告就绪
		s.finish(obj, p, true, Success, 0, nil)
	}
}

func (s *slot) doAccept(obj *object, p *pendingOp) {
	nfd, _, err := unix.Accept(obj.fd)
	if err == unix.EAGAIN || err == unix.EINTR || err == unix.ECONNABORTED {
		s.rewait(obj, p, true)
		return
	}
	if err != nil {
		s.finish(obj, p, true, Failure, 0, err)
		return
	}
	unix.CloseOnExec(nfd)
	if err := unix.SetNonblock(nfd, true); err != nil {
		_ = unix.Close(nfd)
		s.finish(obj, p, true, Failure, 0, err)
		return
	}
	// N承载新连接的fd
	s.finish(obj, p, true, Success, nfd, nil)
}

func (s *slot) doRead(obj *object, p *pendingOp) {
	n, err := unix.Read(obj.fd, p.op.Buf)
	if err == unix.EAGAIN || err == unix.EINTR {
		s.rewait(obj, p, true)
		return
	}
	if err != nil {
		s.finish(obj, p, true, Failure, 0, err)
		return
	}
	// n为0表示对端关闭，EOF按成功投递
	s.finish(obj, p, true, Success, n, nil)
}

func (s *slot) doWrite(obj *object, p *pendingOp) {
	n, err := unix.Write(obj.fd, p.op.Buf)
	if err == unix.EAGAIN || err == unix.EINTR {
		s.rewait(obj, p, false)
		return
	}
	if err != nil {
		s.finish(obj, p, false, Failure, 0, err)
		return
	}
	// 短写按实际写出的字节数完成，由调用方续传
	s.finish(obj, p, false, Success, n, nil)
}

// finishConnect 可写后用SO_ERROR判定connect的结果
func (s *slot) finishConnect(obj *object, p *pendingOp) {
	soerr, err := unix.GetsockoptInt(obj.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		s.finish(obj, p, true, Failure, 0, err)
		return
	}
	if soerr != 0 {
		s.finish(obj, p, true, Failure, 0, syscall.Errno(soerr))
		return
	}
	s.finish(obj, p, true, Success, 0, nil)
}

// rewait 虚假就绪。可轮询对象水平触发下会再次通知，
// 直接执行的对象重新排队
func (s *slot) rewait(obj *object, p *pendingOp, read bool) {
	if obj.alwaysReady {
		s.ready = append(s.ready, readyEntry{obj: obj, p: p, read: read})
	}
}

// interestOf 读方向操作等待的poller事件。connect等可写，sleep不挂poller
func interestOf(kind OpKind) netpoll.Interest {
	switch kind {
	case OpConnect:
		return netpoll.Writable
	case OpSleep:
		return 0
	default:
		return netpoll.Readable
	}
}

// syncInterest 按两个方向的在途操作重算poller兴趣并同步
func (s *slot) syncInterest(obj *object) error {
	if obj.alwaysReady {
		return nil
	}
	var want netpoll.Interest
	if obj.readOp != nil {
		want |= interestOf(obj.readOp.op.Kind)
	}
	if obj.writeOp != nil {
		want |= netpoll.Writable
	}
	if want == obj.armed {
		return nil
	}
	var err error
	switch {
	case obj.armed == 0:
		err = s.poller.Arm(obj.fd, uint64(obj.id), want)
	case want == 0:
		err = s.poller.Disarm(obj.fd)
	default:
		err = s.poller.Rearm(obj.fd, uint64(obj.id), want)
	}
	if err != nil {
		return err
	}
	obj.armed = want
	return nil
}

// teardown 摘除方向上的在途操作，撤掉超时和poller兴趣并释放提交名额
func (s *slot) teardown(obj *object, p *pendingOp, read bool) {
	if p.timerID != 0 {
		s.wheel.Cancel(p.timerID)
		p.timerID = 0
	}
	if read {
		obj.readOp = nil
	} else {
		obj.writeOp = nil
	}
	// 调用方可能已经关掉fd，收缩兴趣失败没有影响
	_ = s.syncInterest(obj)
	atomic.AddInt64(&s.inflight, -1)
	obj.release(read)
}

func (s *slot) settle(obj *object) {
	if obj.readOp == nil && obj.writeOp == nil {
		obj.transition(Idle)
	} else {
		obj.transition(Pending)
	}
}

// finish 当场投递终态
func (s *slot) finish(obj *object, p *pendingOp, read bool, st Status, n int, err error) {
	cb := p.op.Callback
	c := Completion{ID: obj.id, Kind: p.op.Kind, Status: st, N: n, Err: err}
	s.teardown(obj, p, read)
	s.settle(obj)
	s.invoke(cb, c)
}

// finishLater 终态推迟到投递阶段。取消产生的completion绝不与Cancel调用同步
func (s *slot) finishLater(obj *object, p *pendingOp, read bool, st Status, n int, err error) {
	cb := p.op.Callback
	c := Completion{ID: obj.id, Kind: p.op.Kind, Status: st, N: n, Err: err}
	s.teardown(obj, p, read)
	if st == Cancelled {
		obj.transition(Cancelling)
	}
	s.deferred = append(s.deferred, delivery{obj: obj, cb: cb, c: c})
}

// invoke 回调里的panic视为该slot的致命故障，其他slot不受影响
func (s *slot) invoke(cb Callback, c Completion) {
	defer func() {
		if r := recover(); r != nil {
			s.halt(fmt.Errorf("completion callback panic: %v", r))
		}
	}()
	atomic.AddUint64(&s.completed, 1)
	cb(c)
}

// doSubmit 在归属slot上落地一次提交
func (s *slot) doSubmit(id ID, op Operation) {
	read := op.Kind.readClass()
	obj, err := s.registry.Lookup(id)
	if err != nil {
		// 对象在提交闭包执行前被注销
		s.deferred = append(s.deferred, delivery{cb: op.Callback, c: Completion{ID: id, Kind: op.Kind, Status: Cancelled}})
		return
	}
	if s.stopping {
		obj.release(read)
		s.deferred = append(s.deferred, delivery{obj: obj, cb: op.Callback, c: Completion{ID: id, Kind: op.Kind, Status: Cancelled}})
		return
	}
	if read && obj.cancelRead {
		// 取消请求先于提交闭包到达
		obj.cancelRead = false
		obj.release(true)
		s.deferred = append(s.deferred, delivery{obj: obj, cb: op.Callback, c: Completion{ID: id, Kind: op.Kind, Status: Cancelled}})
		return
	}
	if !read && obj.cancelWrite {
		obj.cancelWrite = false
		obj.release(false)
		s.deferred = append(s.deferred, delivery{obj: obj, cb: op.Callback, c: Completion{ID: id, Kind: op.Kind, Status: Cancelled}})
		return
	}
	p := &pendingOp{op: op}
	if read {
		obj.readOp = p
	} else {
		obj.writeOp = p
	}
	obj.transition(Pending)
	atomic.AddInt64(&s.inflight, 1)
	if !op.Deadline.IsZero() {
		s.armTimeout(obj, p, read)
	}
	switch {
	case op.Kind == OpSleep:
		// 纯时间轮操作
	case obj.alwaysReady:
		s.ready = append(s.ready, readyEntry{obj: obj, p: p, read: read})
	case op.Kind == OpConnect:
		s.startConnect(obj, p)
	default:
		if aerr := s.syncInterest(obj); aerr != nil {
			s.finishLater(obj, p, read, Failure, 0, aerr)
		}
	}
}

// armTimeout 截止时间挂到时间轮，触发边界不早于Deadline。
// 任务触发时校验指针，方向上的操作已经换代时什么都不做
func (s *slot) armTimeout(obj *object, p *pendingOp, read bool) {
	st := TimedOut
	if p.op.Kind == OpSleep {
		st = Success
	}
	p.timerID = s.wheel.ScheduleAt(p.op.Deadline, 0, func() {
		cur := obj.writeOp
		if read {
			cur = obj.readOp
		}
		if cur != p {
			return
		}
		p.timerID = 0
		s.finish(obj, p, read, st, 0, nil)
	})
}

// startConnect 先直接尝试connect，EINPROGRESS时等可写再取结果
func (s *slot) startConnect(obj *object, p *pendingOp) {
	err := unix.Connect(obj.fd, p.op.Addr)
	switch err {
	case nil, unix.EISCONN:
		s.finishLater(obj, p, true, Success, 0, nil)
	case unix.EINPROGRESS, unix.EINTR:
		if aerr := s.syncInterest(obj); aerr != nil {
			s.finishLater(obj, p, true, Failure, 0, aerr)
		}
	default:
		s.finishLater(obj, p, true, Failure, 0, err)
	}
}

// doCancel 取消对象上所有在途操作，每个方向恰好产生一个Cancelled。
// 已经完成的操作不受影响
func (s *slot) doCancel(id ID) {
	obj, err := s.registry.Lookup(id)
	if err != nil {
		return
	}
	if p := obj.readOp; p != nil {
		s.finishLater(obj, p, true, Cancelled, 0, nil)
	} else if atomic.LoadUint32(&obj.readPending) != 0 {
		// 名额已被抢占但提交闭包还在队列里，标记之后由闭包自行取消
		obj.cancelRead = true
	}
	if p := obj.writeOp; p != nil {
		s.finishLater(obj, p, false, Cancelled, 0, nil)
	} else if atomic.LoadUint32(&obj.writePending) != 0 {
		obj.cancelWrite = true
	}
}

func (s *slot) doSchedule(seq uint32, delay, period time.Duration, cb Callback) {
	if s.stopping {
		return
	}
	kind := OpSleep
	if period > 0 {
		kind = OpTick
	}
	tid := s.wheel.ScheduleAt(time.Now().Add(delay), period, func() {
		if period <= 0 {
			delete(s.timers, seq)
		}
		s.invoke(cb, Completion{Kind: kind, Status: Success})
	})
	s.timers[seq] = tid
}

func (s *slot) doCancelTimer(seq uint32) {
	if tid, ok := s.timers[seq]; ok {
		s.wheel.Cancel(tid)
		delete(s.timers, seq)
	}
}

// beginShutdown 停止接收新任务，所有在途操作按Cancelled收尾，
// 自由定时器直接丢弃
func (s *slot) beginShutdown() {
	if s.stopping {
		return
	}
	s.stopping = true
	s.work.Close()
	for _, obj := range s.registry.Snapshot() {
		if p := obj.readOp; p != nil {
			s.finishLater(obj, p, true, Cancelled, 0, nil)
		}
		if p := obj.writeOp; p != nil {
			s.finishLater(obj, p, false, Cancelled, 0, nil)
		}
	}
	s.wheel.Clear()
	s.timers = make(map[uint32]timewheel.TaskID)
	log.Debug("slot %d draining", s.index)
}
