package argiope

import (
	"sync"
	"testing"
	"time"
)

func TestDeafultLimit(t *testing.T) {
	limit := NewDefaultLimiter(16)
	start := time.Now()
	wg := &sync.WaitGroup{}
	for i := 0; i < 33; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := limit.CheckAndWaitLimiterPass()
			if err != nil {
				t.Errorf("CheckAndWaitLimiterPass error %s", err.Error())
			}
		}()
	}
	wg.Wait()
	interval := time.Since(start).Seconds()
	if interval < 1.9 {
		t.Errorf("DefaultLimiter is not working")
	}
	t.Logf("task interval is %f", interval)
}

func TestNoLimit(t *testing.T) {
	start := time.Now()
	for i := 0; i < 1000; i++ {
		if err := (NoLimitLimiter{}).CheckAndWaitLimiterPass(); err != nil {
			t.Errorf("CheckAndWaitLimiterPass error %s", err.Error())
		}
	}
	if time.Since(start) > time.Second {
		t.Errorf("NoLimitLimiter should never wait")
	}
}
