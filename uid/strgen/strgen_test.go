package strgen

import (
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/hatlonely/pgmodel/ref"
)

func TestUUIDGenerator(t *testing.T) {
	Convey("UUID 生成器", t, func() {
		Convey("默认 v4 无连字符", func() {
			id := NewUUIDGeneratorWithOptions(nil).Generate()
			So(id, ShouldHaveLength, 32)
			So(id, ShouldNotContainSubstring, "-")
		})

		for _, version := range []string{"v1", "v4", "v6", "v7"} {
			Convey("版本 "+version, func() {
				id := NewUUIDGeneratorWithOptions(&UUIDOptions{Version: version, WithHyphens: true}).Generate()
				u, err := uuid.Parse(id)
				So(err, ShouldBeNil)
				So(u.Version().String(), ShouldEqual, "VERSION_"+version[1:])
			})
		}

		Convey("不重复", func() {
			g := NewUUIDGeneratorWithOptions(&UUIDOptions{Version: "v7"})
			seen := map[string]struct{}{}
			for i := 0; i < 1000; i++ {
				seen[g.Generate()] = struct{}{}
			}
			So(len(seen), ShouldEqual, 1000)
		})
	})
}

func TestNewStrGeneratorWithOptions(t *testing.T) {
	Convey("通过 TypeOptions 创建", t, func() {
		gen, err := NewStrGeneratorWithOptions(&ref.TypeOptions{
			Namespace: "github.com/hatlonely/pgmodel/uid/strgen",
			Type:      "UUIDGenerator",
			Options:   map[string]any{"version": "v7", "withHyphens": true},
		})
		So(err, ShouldBeNil)
		So(gen.Generate(), ShouldHaveLength, 36)

		_, err = NewStrGeneratorWithOptions(nil)
		So(err, ShouldNotBeNil)
	})
}
