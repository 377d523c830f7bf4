package argiope

import (
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
)

func TestIncrNewMetric(t *testing.T) {
	convey.Convey("Test a new metric incr", t, func() {
		d := NewDefaultStatistic()
		d.Incr("403")
		d.Incr("custom")
		convey.So(d.Get("403"), convey.ShouldEqual, uint64(1))
		convey.So(d.Get("custom"), convey.ShouldEqual, uint64(1))
		convey.So(d.Get("unknown"), convey.ShouldEqual, uint64(0))
		convey.So(d.GetAllStats(), convey.ShouldResemble, map[string]uint64{"403": 1, "custom": 1})
	})
}

func TestConcurrentIncr(t *testing.T) {
	convey.Convey("counters are safe for concurrent use", t, func() {
		d := NewDefaultStatistic()
		wg := &sync.WaitGroup{}
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					d.Incr(RequestStats)
				}
			}()
		}
		wg.Wait()
		convey.So(d.Get(RequestStats), convey.ShouldEqual, uint64(3200))
	})
}

func TestObserve(t *testing.T) {
	convey.Convey("average execution time", t, func() {
		d := NewDefaultStatistic()
		convey.So(d.AverageMillis(), convey.ShouldEqual, 0)
		d.Observe(2 * time.Millisecond)
		d.Observe(4 * time.Millisecond)
		convey.So(d.AverageMillis(), convey.ShouldEqual, 3)
	})
}

func TestRuntimeStatus(t *testing.T) {
	convey.Convey("status transitions", t, func() {
		s := NewRuntimeStatus()
		convey.So(s.GetStatusOn().GetTypeName(), convey.ShouldEqual, "stop")
		s.SetStartAt(time.Now().UnixMilli() - 1500)
		s.SetStatus(ON_START)
		convey.So(s.GetStatusOn().GetTypeName(), convey.ShouldEqual, "running")
		convey.So(s.GetDuration(), convey.ShouldBeGreaterThanOrEqualTo, 1.5)
		s.SetStatus(ON_STOP)
		s.SetDuration(1.23456)
		convey.So(s.GetDuration(), convey.ShouldEqual, 1.23)
		s.SetStopAt(42)
		convey.So(s.GetStopAt(), convey.ShouldEqual, int64(42))
	})
}
