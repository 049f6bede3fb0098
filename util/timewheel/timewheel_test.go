package timewheel

import (
	"testing"
	"time"
)

func TestTimeWheel_Schedule(t *testing.T) {
	tw := NewTimeWheel(100*time.Millisecond, 8)
	base := time.Now()
	tw.lastTick = base

	fired := 0
	tw.Schedule(250*time.Millisecond, 0, func() {
		fired++
	})
	if tw.Size() != 1 {
		t.FailNow()
	}

	if n := tw.Advance(base.Add(200 * time.Millisecond)); n != 0 || fired != 0 {
		t.Logf("fired too early, n=%d fired=%d", n, fired)
		t.FailNow()
	}
	if n := tw.Advance(base.Add(300 * time.Millisecond)); n != 1 || fired != 1 {
		t.Logf("expect 1 fire, n=%d fired=%d", n, fired)
		t.FailNow()
	}
	if tw.Size() != 0 {
		t.Fail()
	}
	// 已触发的任务不会重复触发
	if n := tw.Advance(base.Add(2 * time.Second)); n != 0 || fired != 1 {
		t.Fail()
	}
}

func TestTimeWheel_RoundWrap(t *testing.T) {
	tw := NewTimeWheel(10*time.Millisecond, 4)
	base := time.Now()
	tw.lastTick = base

	fired := 0
	tw.Schedule(100*time.Millisecond, 0, func() {
		fired++
	})
	// 10个tick，轮长只有4，需要跨两轮
	if tw.Advance(base.Add(90*time.Millisecond)); fired != 0 {
		t.Logf("fired before deadline")
		t.FailNow()
	}
	if tw.Advance(base.Add(100*time.Millisecond)); fired != 1 {
		t.Logf("expect fire at 10 ticks, fired=%d", fired)
		t.FailNow()
	}
}

func TestTimeWheel_FullRevolution(t *testing.T) {
	tw := NewTimeWheel(10*time.Millisecond, 4)
	base := time.Now()
	tw.lastTick = base

	fired := 0
	// 延时刚好等于一整轮
	tw.Schedule(40*time.Millisecond, 0, func() {
		fired++
	})
	if tw.Advance(base.Add(30*time.Millisecond)); fired != 0 {
		t.FailNow()
	}
	if tw.Advance(base.Add(40*time.Millisecond)); fired != 1 {
		t.Logf("expect fire after one revolution, fired=%d", fired)
		t.FailNow()
	}
}

func TestTimeWheel_Periodic(t *testing.T) {
	tw := NewTimeWheel(100*time.Millisecond, 8)
	base := time.Now()
	tw.lastTick = base

	fired := 0
	id := tw.Schedule(100*time.Millisecond, 100*time.Millisecond, func() {
		fired++
	})

	tw.Advance(base.Add(500 * time.Millisecond))
	if fired != 5 {
		t.Logf("expect 5 fires, got %d", fired)
		t.FailNow()
	}
	if !tw.Cancel(id) {
		t.FailNow()
	}
	tw.Advance(base.Add(1 * time.Second))
	if fired != 5 {
		t.Logf("fired after cancel, got %d", fired)
		t.FailNow()
	}
}

func TestTimeWheel_Cancel(t *testing.T) {
	tw := NewTimeWheel(100*time.Millisecond, 8)
	base := time.Now()
	tw.lastTick = base

	fired := 0
	id := tw.Schedule(200*time.Millisecond, 0, func() {
		fired++
	})
	other := tw.Schedule(200*time.Millisecond, 0, func() {
		fired++
	})

	if !tw.Cancel(id) {
		t.FailNow()
	}
	if tw.Cancel(id) {
		t.FailNow()
	}
	tw.Advance(base.Add(1 * time.Second))
	if fired != 1 {
		t.Logf("expect only uncancelled task to fire, fired=%d", fired)
		t.FailNow()
	}
	// 已触发的任务cancel返回false
	if tw.Cancel(other) {
		t.Fail()
	}
}

func TestTimeWheel_Next(t *testing.T) {
	tw := NewTimeWheel(100*time.Millisecond, 8)
	base := time.Now()
	tw.lastTick = base

	if _, ok := tw.Next(base); ok {
		t.FailNow()
	}
	tw.Schedule(1*time.Second, 0, func() {})
	d, ok := tw.Next(base.Add(30 * time.Millisecond))
	if !ok || d != 70*time.Millisecond {
		t.Logf("expect 70ms until next tick, got %v", d)
		t.FailNow()
	}
	// 已经越过tick边界时返回0
	d, ok = tw.Next(base.Add(150 * time.Millisecond))
	if !ok || d != 0 {
		t.FailNow()
	}
}

func TestTimeWheel_Clear(t *testing.T) {
	tw := NewTimeWheel(100*time.Millisecond, 8)
	base := time.Now()
	tw.lastTick = base

	fired := 0
	for i := 0; i < 10; i++ {
		tw.Schedule(time.Duration(i+1)*100*time.Millisecond, 0, func() {
			fired++
		})
	}
	if tw.Size() != 10 {
		t.FailNow()
	}
	tw.Clear()
	if tw.Size() != 0 {
		t.FailNow()
	}
	tw.Advance(base.Add(5 * time.Second))
	if fired != 0 {
		t.Logf("cleared task fired")
		t.Fail()
	}
}

func TestTimeWheel_ScheduleAt(t *testing.T) {
	tw := NewTimeWheel(100*time.Millisecond, 8)
	base := time.Now()
	tw.lastTick = base

	fired := 0
	// 绝对时间不在tick边界上，向后取整到下一个边界
	tw.ScheduleAt(base.Add(250*time.Millisecond), 0, func() {
		fired++
	})
	tw.Advance(base.Add(200 * time.Millisecond))
	if fired != 0 {
		t.FailNow()
	}
	tw.Advance(base.Add(300 * time.Millisecond))
	if fired != 1 {
		t.Logf("expect fire at the 300ms boundary, fired=%d", fired)
		t.FailNow()
	}
}

func TestTimeWheel_ScheduleAtPeriodic(t *testing.T) {
	tw := NewTimeWheel(100*time.Millisecond, 8)
	base := time.Now()
	tw.lastTick = base

	fired := 0
	id := tw.ScheduleAt(base.Add(150*time.Millisecond), 200*time.Millisecond, func() {
		fired++
	})
	tw.Advance(base.Add(200 * time.Millisecond))
	if fired != 1 {
		t.Logf("expect first fire at 200ms, fired=%d", fired)
		t.FailNow()
	}
	tw.Advance(base.Add(400 * time.Millisecond))
	if fired != 2 {
		t.Logf("expect periodic fire at 400ms, fired=%d", fired)
		t.FailNow()
	}
	if !tw.Cancel(id) {
		t.FailNow()
	}
}

func TestTimeWheel_ScheduleInsideJob(t *testing.T) {
	tw := NewTimeWheel(100*time.Millisecond, 8)
	base := time.Now()
	tw.lastTick = base

	var second bool
	tw.Schedule(100*time.Millisecond, 0, func() {
		tw.Schedule(100*time.Millisecond, 0, func() {
			second = true
		})
	})
	tw.Advance(base.Add(100 * time.Millisecond))
	if second {
		t.FailNow()
	}
	tw.Advance(base.Add(200 * time.Millisecond))
	if !second {
		t.Logf("chained task did not fire")
		t.FailNow()
	}
}
