package argiope

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/smartystreets/goconvey/convey"
)

func TestRdbClient(t *testing.T) {
	convey.Convey("connect to redis", t, func() {
		mockRedis := miniredis.RunT(t)
		rdb, err := NewRdbClient(&RedisConfig{
			Addr:            mockRedis.Addr(),
			ConnectionsSize: 4,
			Timeout:         5 * time.Second,
			MaxRetry:        3,
		})
		convey.So(err, convey.ShouldBeNil)
		defer rdb.Close()
		status, err := rdb.Set(context.TODO(), "argiope", "test", 0).Result()
		convey.So(err, convey.ShouldBeNil)
		convey.So(status, convey.ShouldEqual, "OK")
	})
	convey.Convey("unreachable redis", t, func() {
		mockRedis := miniredis.RunT(t)
		addr := mockRedis.Addr()
		mockRedis.Close()
		_, err := NewRdbClient(&RedisConfig{Addr: addr, Timeout: 200 * time.Millisecond})
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestRedisLogSink(t *testing.T) {
	convey.Convey("script logs are pushed onto a list", t, func() {
		mockRedis := miniredis.RunT(t)
		rdb, err := NewRdbClient(&RedisConfig{Addr: mockRedis.Addr(), Timeout: time.Second})
		convey.So(err, convey.ShouldBeNil)
		defer rdb.Close()

		sink := NewRedisLogSink(rdb, "argiope:logs", RedisLogSinkWithMaxLen(2))
		req := mustRequest(t, RequestWithURL("http://example.com/log.lua"))
		for _, line := range []string{"one\n", "two\n", "three\n"} {
			convey.So(sink.Write(context.TODO(), req, []byte(line)), convey.ShouldBeNil)
		}
		items, err := mockRedis.List("argiope:logs")
		convey.So(err, convey.ShouldBeNil)
		convey.So(len(items), convey.ShouldEqual, 2)
		record := map[string]interface{}{}
		convey.So(jsoniter.Unmarshal([]byte(items[1]), &record), convey.ShouldBeNil)
		convey.So(record["log"], convey.ShouldEqual, "three\n")
		convey.So(record["method"], convey.ShouldEqual, "GET")
		convey.So(record["url"], convey.ShouldEqual, "http://example.com/log.lua")
	})
}
