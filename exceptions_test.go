package argiope

import (
	"errors"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestErrors(t *testing.T) {
	convey.Convey("error messages", t, func() {
		convey.So(newConfigurationError("workers", "must be at least %d", 1).Error(), convey.ShouldEqual, "configuration error: workers: must be at least 1")
		convey.So((&ConfigurationError{Reason: "bad"}).Error(), convey.ShouldEqual, "configuration error: bad")
		convey.So((&ScriptNotFoundError{Path: "/www/x.lua"}).Error(), convey.ShouldEqual, "Script not found: /www/x.lua")
		convey.So((&ScriptExecutionError{Message: "boom"}).Error(), convey.ShouldEqual, "Script execution failed: boom")
	})
	convey.Convey("startup errors unwrap", t, func() {
		cause := errors.New("no engine")
		err := error(&EngineStartupError{ContextID: "ctx", Cause: cause})
		convey.So(errors.Is(err, cause), convey.ShouldBeTrue)
		convey.So(err.Error(), convey.ShouldEqual, "context ctx failed to start: no engine")
	})
}
