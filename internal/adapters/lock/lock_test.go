package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLocal(t *testing.T) {
	Convey("Given an in-process locker", t, func() {
		l := NewLocal()
		ctx := context.Background()

		Convey("When a lease is held", func() {
			lease, err := l.Acquire(ctx)
			So(err, ShouldBeNil)

			Convey("Then a second acquire fails", func() {
				_, err := l.Acquire(ctx)
				So(errors.Is(err, ErrNotObtained), ShouldBeTrue)
			})

			Convey("Then refreshing keeps it held", func() {
				So(lease.Refresh(ctx), ShouldBeNil)
				_, err := l.Acquire(ctx)
				So(errors.Is(err, ErrNotObtained), ShouldBeTrue)
			})

			Convey("Then releasing frees it", func() {
				So(lease.Release(ctx), ShouldBeNil)
				again, err := l.Acquire(ctx)
				So(err, ShouldBeNil)
				So(again, ShouldNotBeNil)
			})
		})
	})
}

func TestRedisLockerDefaults(t *testing.T) {
	Convey("Given a redis locker built without key or ttl", t, func() {
		rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
		l := NewRedisLockerWithClient(rdb, "", 0)
		defer l.Close()

		Convey("Then defaults are applied", func() {
			So(l.key, ShouldEqual, "floodwatch:sync:pass")
			So(l.ttl, ShouldEqual, 10*time.Minute)
		})

		Convey("Then an unreachable server surfaces an error other than contention", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_, err := l.Acquire(ctx)
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrNotObtained), ShouldBeFalse)
		})
	})

	Convey("Given an unreachable redis address", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, err := NewRedisLocker(ctx, "127.0.0.1:1", "k", time.Minute)

		Convey("Then construction fails", func() {
			So(err, ShouldNotBeNil)
		})
	})
}
