package argiope

import (
	"errors"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
	"github.com/spf13/afero"
)

var yamlExample = []byte(`
redis:
  addr: "127.0.0.1:6379"
  password: ""
  db: 2
  timeout: 5s
log:
  level: "error"
runtime:
  workers: 3
  docroot: /www
  argv: ["index.lua", "--quiet"]
  throw_request_errors: true
  queue_size: 64
  rate: 100
  heartbeat: 1s
  ini:
    memory_limit: 64M
  rewrite:
    - operation: and
      conditions:
        - type: not_exists
      rewriters:
        - type: path
          args: ["^.*$", "/index.lua"]
`)

func writeSettings(t *testing.T, content []byte) *Configuration {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/etc/argiope/settings.yaml", content, 0o644); err != nil {
		t.Fatalf("write settings %s", err.Error())
	}
	config, err := LoadSettings(fs, "/etc/argiope")
	if err != nil {
		t.Fatalf("load settings %s", err.Error())
	}
	return config
}

func TestSetting(t *testing.T) {
	convey.Convey("test settings load", t, func() {
		config := NewConfiguration()
		fs := afero.NewMemMapFs()
		convey.So(fs.Mkdir("/etc/viper", 0o777), convey.ShouldBeNil)
		convey.So(afero.WriteFile(fs, "/etc/viper/settings.yaml", yamlExample, 0o644), convey.ShouldBeNil)
		config.SetFs(fs)
		ret := config.load("/etc/viper")
		value, _ := config.GetValue("log.level")
		convey.So(ret, convey.ShouldBeTrue)
		convey.So(config.GetString("redis.addr"), convey.ShouldContainSubstring, "127.0.0.1")
		convey.So(config.GetString("log.level"), convey.ShouldContainSubstring, "error")
		convey.So(value, convey.ShouldNotBeNil)
		convey.So(config.GetString("runtime.index"), convey.ShouldEqual, "index.lua")
	})
	convey.Convey("missing settings", t, func() {
		_, err := LoadSettings(afero.NewMemMapFs(), "/nowhere")
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestRuntimeOptionsFromSettings(t *testing.T) {
	convey.Convey("runtime keys become options", t, func() {
		config := writeSettings(t, yamlExample)
		opts, err := RuntimeOptionsFromSettings(config)
		convey.So(err, convey.ShouldBeNil)
		r := &Runtime{}
		for _, o := range opts {
			o(r)
		}
		convey.So(r.workers, convey.ShouldEqual, 3)
		convey.So(r.docroot, convey.ShouldEqual, "/www")
		convey.So(r.argv, convey.ShouldResemble, []string{"index.lua", "--quiet"})
		convey.So(r.throwRequestErrors, convey.ShouldBeTrue)
		convey.So(r.index, convey.ShouldEqual, "index.lua")
		convey.So(r.queueSize, convey.ShouldEqual, uint32(64))
		convey.So(r.heartbeat, convey.ShouldEqual, time.Second)
		convey.So(r.limiter, convey.ShouldNotBeNil)
		convey.So(r.rules.Len(), convey.ShouldEqual, 1)
		limit, _ := r.ini.Get("memory_limit")
		convey.So(limit, convey.ShouldEqual, "64M")
		flush, _ := r.ini.Get("implicit_flush")
		convey.So(flush, convey.ShouldEqual, "1")
	})
	convey.Convey("bad rules fail", t, func() {
		config := writeSettings(t, []byte(`
runtime:
  rewrite:
    - conditions:
        - type: nope
`))
		_, err := RuntimeOptionsFromSettings(config)
		var cfgErr *ConfigurationError
		convey.So(errors.As(err, &cfgErr), convey.ShouldBeTrue)
	})
	convey.Convey("bad queue size fails", t, func() {
		config := writeSettings(t, []byte("runtime:\n  queue_size: 0\n"))
		_, err := RuntimeOptionsFromSettings(config)
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestRedisConfigFromSettings(t *testing.T) {
	convey.Convey("redis section", t, func() {
		config := writeSettings(t, yamlExample)
		rdb, ok, err := RedisConfigFromSettings(config)
		convey.So(err, convey.ShouldBeNil)
		convey.So(ok, convey.ShouldBeTrue)
		convey.So(rdb.Addr, convey.ShouldEqual, "127.0.0.1:6379")
		convey.So(rdb.DB, convey.ShouldEqual, 2)
		convey.So(rdb.Timeout, convey.ShouldEqual, 5*time.Second)

		_, ok, err = RedisConfigFromSettings(NewConfiguration())
		convey.So(err, convey.ShouldBeNil)
		convey.So(ok, convey.ShouldBeFalse)
	})
}
