package argiope

import (
	"errors"
	"testing"

	"github.com/smartystreets/goconvey/convey"
	"github.com/spf13/afero"
)

func TestTranslatePath(t *testing.T) {
	convey.Convey("resolve scripts under the docroot", t, func() {
		fs := NewMemFileSystem()
		convey.So(fs.WriteFile("/srv/www/index.lua", []byte("echo('root')")), convey.ShouldBeNil)
		convey.So(fs.WriteFile("/srv/www/app/run.lua", []byte("echo('run')")), convey.ShouldBeNil)
		convey.So(fs.WriteFile("/srv/secret.lua", []byte("")), convey.ShouldBeNil)

		p, err := TranslatePath(fs, "/srv/www", "/app/run.lua", "index.lua")
		convey.So(err, convey.ShouldBeNil)
		convey.So(p, convey.ShouldEqual, "/srv/www/app/run.lua")

		p, err = TranslatePath(fs, "/srv/www", "/", "index.lua")
		convey.So(err, convey.ShouldBeNil)
		convey.So(p, convey.ShouldEqual, "/srv/www/index.lua")

		_, err = TranslatePath(fs, "/srv/www", "/app", "index.lua")
		convey.So(err, convey.ShouldNotBeNil)
		convey.So(err.Error(), convey.ShouldEqual, "Script not found: /srv/www/app")

		_, err = TranslatePath(fs, "/srv/www", "/../secret.lua", "index.lua")
		var notFound *ScriptNotFoundError
		convey.So(errors.As(err, &notFound), convey.ShouldBeTrue)
		convey.So(notFound.Path, convey.ShouldEqual, "/srv/www/secret.lua")

		_, err = TranslatePath(fs, "/srv/www", "relative.lua", "index.lua")
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestAferoFileSystem(t *testing.T) {
	convey.Convey("existence and reads", t, func() {
		mem := afero.NewMemMapFs()
		fs := NewFileSystem(mem)
		convey.So(afero.WriteFile(mem, "/d/f.lua", []byte("x"), 0o644), convey.ShouldBeNil)
		convey.So(fs.Exists("/d"), convey.ShouldBeTrue)
		convey.So(fs.IsFile("/d"), convey.ShouldBeFalse)
		convey.So(fs.IsFile("/d/f.lua"), convey.ShouldBeTrue)
		convey.So(fs.Exists("/d/none.lua"), convey.ShouldBeFalse)
		data, err := fs.ReadFile("/d/f.lua")
		convey.So(err, convey.ShouldBeNil)
		convey.So(string(data), convey.ShouldEqual, "x")
		_, err = fs.ReadFile("/d/none.lua")
		convey.So(err, convey.ShouldNotBeNil)
		convey.So(fs.Afero(), convey.ShouldEqual, mem)
	})
}
