package argiope

import (
	"errors"
	"testing"

	"github.com/agiledragon/gomonkey/v2"
	c "github.com/smartystreets/goconvey/convey" // 别名导入
)

func TestEventWatcher(t *testing.T) {
	c.Convey("Watch events", t, func() {
		hooker := NewDefaultHooks()
		f := func() error {
			ch := make(chan Event, 5)
			defer close(ch)
			ch <- Event{Type: START}
			ch <- Event{Type: STOP}
			ch <- Event{Type: ERROR, Params: []interface{}{errors.New("boom")}}
			ch <- Event{Type: HEARTBEAT}
			ch <- Event{Type: EXIT}
			return hooker.EventsWatcher(ch)
		}
		c.So(f(), c.ShouldBeNil)
	})
	c.Convey("closed channel stops the watcher", t, func() {
		ch := make(chan Event)
		close(ch)
		c.So(NewDefaultHooks().EventsWatcher(ch), c.ShouldBeNil)
	})
	c.Convey("event names", t, func() {
		c.So(START.String(), c.ShouldEqual, "start")
		c.So(EXIT.String(), c.ShouldEqual, "exit")
		c.So(EventType(99).String(), c.ShouldEqual, "unknown")
	})
}

func TestEventWatcherWithError(t *testing.T) {
	c.Convey("Watch start event error", t, func() {
		hooker := NewDefaultHooks()
		patch := gomonkey.ApplyFunc((*DefaultHooks).Start, func(_ *DefaultHooks, params ...interface{}) error {
			return errors.New("start error")
		})
		defer patch.Reset()
		ch := make(chan Event, 1)
		defer close(ch)
		ch <- Event{Type: START}
		err := hooker.EventsWatcher(ch)
		c.So(err, c.ShouldNotBeNil)
		c.So(err.Error(), c.ShouldContainSubstring, "start error")
	})
	c.Convey("Error hook failures do not stop the watcher", t, func() {
		hooker := NewDefaultHooks()
		patch := gomonkey.ApplyFunc((*DefaultHooks).Error, func(_ *DefaultHooks, params ...interface{}) error {
			return errors.New("error hook failed")
		})
		defer patch.Reset()
		ch := make(chan Event, 2)
		ch <- Event{Type: ERROR}
		ch <- Event{Type: EXIT}
		c.So(hooker.EventsWatcher(ch), c.ShouldBeNil)
	})
}
