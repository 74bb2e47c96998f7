package logger_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/okian/floodwatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given a logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(logger.InitWithWriter(&buf), ShouldBeNil)
		log := logger.Get()

		Convey("When logging at info", func() {
			log.Info(context.Background(), "pass finished", logger.Int("synced", 3), logger.Error(errors.New("boom")))

			Convey("Then the record carries message, fields and source", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "pass finished")
				So(out, ShouldContainSubstring, "synced=3")
				So(out, ShouldContainSubstring, "error=boom")
				So(out, ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When using a named child logger", func() {
			log.Named("reconcile").With(logger.Int64("submission_id", 7)).Warn(context.Background(), "delivery failed")

			Convey("Then the component and attached fields are present", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "component=reconcile")
				So(out, ShouldContainSubstring, "submission_id=7")
			})
		})

		Convey("When the level is raised to error", func() {
			So(logger.SetLevelString("error"), ShouldBeNil)
			log.Info(context.Background(), "hidden")

			Convey("Then info records are dropped", func() {
				So(buf.String(), ShouldNotContainSubstring, "hidden")
			})
			So(logger.SetLevelString("info"), ShouldBeNil)
		})

		Convey("When an unknown level is given", func() {
			err := logger.SetLevelString("loud")

			Convey("Then an error is returned", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestNop(t *testing.T) {
	Convey("Given the no-op logger", t, func() {
		log := logger.Nop()

		Convey("Then every method is safe to call", func() {
			So(func() {
				log.Error(context.Background(), "dropped", logger.Error(errors.New("boom")))
				log.Named("x").With(logger.String("k", "v")).Info(context.Background(), "dropped")
			}, ShouldNotPanic)
		})
	})
}
