package observ

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type stepClock struct {
	t    time.Time
	step time.Duration
}

func (c *stepClock) now() time.Time {
	cur := c.t
	c.t = c.t.Add(c.step)
	return cur
}

func TestTimerReport(t *testing.T) {
	clk := &stepClock{t: time.Unix(0, 0), step: 2 * time.Millisecond}
	tm := NewTimerWithClock(clk.now)

	idx := tm.Begin("load")
	tm.End(idx, "taxonomy")
	err := tm.Measure("replay", func() error { return errors.New("boom") })
	if err == nil {
		t.Fatal("Measure swallowed the error")
	}
	tm.End(42, "ignored")

	rep := tm.Report()
	if len(rep.Stages) != 2 {
		t.Fatalf("stages = %d", len(rep.Stages))
	}
	if rep.Stages[0].DurationMS != 2 || rep.Stages[0].Note != "taxonomy" {
		t.Fatalf("stage 0 = %+v", rep.Stages[0])
	}
	if rep.Stages[1].Note != "failed" {
		t.Fatalf("stage 1 = %+v", rep.Stages[1])
	}
	if rep.TotalMS != 4 {
		t.Fatalf("total = %v", rep.TotalMS)
	}
	sum := tm.Summary()
	if !strings.Contains(sum, "load") || !strings.Contains(sum, "// taxonomy") || !strings.Contains(sum, "total") {
		t.Fatalf("summary:\n%s", sum)
	}
}

func TestNilTimer(t *testing.T) {
	var tm *Timer
	tm.End(tm.Begin("x"), "")
	if rep := tm.Report(); len(rep.Stages) != 0 {
		t.Fatalf("nil timer reported %+v", rep)
	}
}
