package timewheel

import (
	"time"

	"aio/datastruct/list"
)

type TaskID uint64

type task struct {
	id     TaskID
	period time.Duration
	round  int
	slot   int
	node   *list.Node
	job    func()
}

// TimeWheel 不自带ticker，由持有者在自己的循环中调用 Advance 驱动。
// 所有方法都不是并发安全的
type TimeWheel struct {
	// interval between 2 ticks
	interval time.Duration

	// slots on the wheel, each slot has a list of tasks
	slots []*list.LinkedList
	// current pos of slots
	currentPos int
	slotNum    int

	// lastTick 是最近一次tick对应的时间点
	lastTick time.Time

	timers map[TaskID]*task
	nextID TaskID
}

func NewTimeWheel(interval time.Duration, slotNum int) *TimeWheel {
	if interval <= 0 || slotNum <= 0 {
		panic("invalid time wheel arguments")
	}
	timeWheel := &TimeWheel{
		interval:   interval,
		slots:      make([]*list.LinkedList, slotNum),
		currentPos: 0,
		slotNum:    slotNum,
		lastTick:   time.Now(),
		timers:     make(map[TaskID]*task),
	}
	for i := 0; i < slotNum; i++ {
		timeWheel.slots[i] = list.NewLinkedList()
	}
	return timeWheel
}

// Schedule 注册一个延时任务，delay相对当前轮位置。period大于0表示周期任务，
// 每次触发后以period重新入轮。返回的TaskID可用于Cancel
func (tw *TimeWheel) Schedule(delay time.Duration, period time.Duration, job func()) TaskID {
	tw.nextID++
	t := &task{
		id:     tw.nextID,
		period: period,
		job:    job,
	}
	tw.place(t, delay)
	tw.timers[t.id] = t
	return t.id
}

// ScheduleAt 注册一个绝对时间点的任务，触发的tick边界不早于at，
// 轮的推进滞后不会导致提前触发。period大于0时之后按周期重复
func (tw *TimeWheel) ScheduleAt(at time.Time, period time.Duration, job func()) TaskID {
	tw.nextID++
	t := &task{
		id:     tw.nextID,
		period: period,
		job:    job,
	}
	tw.place(t, at.Sub(tw.lastTick))
	tw.timers[t.id] = t
	return t.id
}

// place 计算任务的round和slot并插入对应的bucket
func (tw *TimeWheel) place(t *task, delay time.Duration) {
	// 向上取整，任务不会早于期望时间触发
	ticks := int((delay + tw.interval - 1) / tw.interval)
	if ticks < 1 {
		ticks = 1
	}
	t.round = ticks / tw.slotNum
	t.slot = (tw.currentPos + ticks) % tw.slotNum
	if t.slot == tw.currentPos && t.round > 0 {
		t.round--
	}
	t.node = tw.slots[t.slot].AddRight(t)
}

// Cancel 移除尚未触发的任务，任务不存在或已经触发时返回false
func (tw *TimeWheel) Cancel(id TaskID) bool {
	t, exists := tw.timers[id]
	if !exists {
		return false
	}
	tw.slots[t.slot].Remove(t.node)
	delete(tw.timers, id)
	return true
}

// Advance 将轮推进到now，同步执行期间到期的所有任务，返回触发数量。
// 空轮直接对齐到now，长时间空闲后不逐格空转
func (tw *TimeWheel) Advance(now time.Time) int {
	if len(tw.timers) == 0 {
		if elapsed := now.Sub(tw.lastTick); elapsed >= tw.interval {
			steps := int(elapsed / tw.interval)
			tw.currentPos = (tw.currentPos + steps) % tw.slotNum
			tw.lastTick = tw.lastTick.Add(time.Duration(steps) * tw.interval)
		}
		return 0
	}
	fired := 0
	for !now.Before(tw.lastTick.Add(tw.interval)) {
		fired += tw.tick()
	}
	return fired
}

func (tw *TimeWheel) tick() int {
	tw.currentPos = (tw.currentPos + 1) % tw.slotNum
	tw.lastTick = tw.lastTick.Add(tw.interval)

	bucket := tw.slots[tw.currentPos]
	var due []*task
	for n := bucket.Left(); n != nil; {
		next := n.Next()
		t := n.Value.(*task)
		// Task not for this round
		if t.round > 0 {
			t.round--
			n = next
			continue
		}
		bucket.Remove(n)
		delete(tw.timers, t.id)
		due = append(due, t)
		n = next
	}
	// 周期任务先重新入轮再触发
	for _, t := range due {
		if t.period > 0 {
			tw.place(t, t.period)
			tw.timers[t.id] = t
		}
		t.job()
	}
	return len(due)
}

// Next 返回距离下一次tick的时长。轮上没有任务时返回false
func (tw *TimeWheel) Next(now time.Time) (time.Duration, bool) {
	if len(tw.timers) == 0 {
		return 0, false
	}
	d := tw.lastTick.Add(tw.interval).Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

func (tw *TimeWheel) Size() int {
	return len(tw.timers)
}

// Clear 丢弃所有未触发的任务
func (tw *TimeWheel) Clear() {
	for _, t := range tw.timers {
		tw.slots[t.slot].Remove(t.node)
	}
	tw.timers = make(map[TaskID]*task)
}

func (tw *TimeWheel) Interval() time.Duration {
	return tw.interval
}
