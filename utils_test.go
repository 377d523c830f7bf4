package argiope

import (
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestGetUUID(t *testing.T) {
	convey.Convey("uuid are unique", t, func() {
		a, b := GetUUID(), GetUUID()
		convey.So(a, convey.ShouldNotEqual, b)
		convey.So(len(a), convey.ShouldEqual, 36)
	})
}
