package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/floodwatch/internal/adapters/repository"
	service "github.com/okian/floodwatch/internal/app"
	"github.com/okian/floodwatch/internal/config"
	"github.com/okian/floodwatch/internal/fieldsim"
	"github.com/okian/floodwatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var ref = time.Date(2025, 7, 10, 8, 30, 0, 0, time.UTC)

func clock() time.Time { return ref }

func testConfig() *config.Config {
	cfg := config.New(context.Background())
	cfg.DatabaseDriver = config.DriverMemory
	cfg.BackgroundSync = false
	cfg.SyncItemPauseMS = 0
	return cfg
}

func startSeeded(ctx context.Context, cfg *config.Config) (*service.Service, fieldsim.Dataset) {
	svc := service.New(cfg, service.WithLogger(logger.Nop()), service.WithClock(clock))
	So(svc.Start(ctx), ShouldBeNil)
	ds := fieldsim.New(fieldsim.WithClock(clock)).Generate()
	_, err := fieldsim.Seed(ctx, svc.Store(), &ds)
	So(err, ShouldBeNil)
	return svc, ds
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service with the memory driver", t, func() {
		ctx := context.Background()
		svc := service.New(testConfig(), service.WithLogger(logger.Nop()))

		Convey("When getting stats before starting", func() {
			stats := svc.GetStats()

			Convey("Then it should return basic stats", func() {
				So(stats["started"], ShouldEqual, false)
				So(stats["database_driver"], ShouldEqual, "memory")
			})
		})

		Convey("When operations are called before starting", func() {
			_, err := svc.SyncStatus(ctx)

			Convey("Then they report the service is not started", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("When starting and stopping the service", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			started := svc.GetStats()
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it reports its state", func() {
				So(started["started"], ShouldEqual, true)
				So(started["rules"], ShouldHaveLength, 5)
				So(started["sites"], ShouldEqual, 0)
				So(started["sync_thread_alive"], ShouldEqual, false)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})

	Convey("Given background sync is enabled", t, func() {
		ctx := context.Background()
		cfg := testConfig()
		cfg.BackgroundSync = true
		svc := service.New(cfg, service.WithLogger(logger.Nop()))
		So(svc.Start(ctx), ShouldBeNil)
		alive := svc.GetStats()["sync_thread_alive"]
		So(svc.Stop(ctx), ShouldBeNil)

		Convey("Then the loop runs while started", func() {
			So(alive, ShouldEqual, true)
		})
	})

	Convey("Given a sqlite database in a temp directory", t, func() {
		ctx := context.Background()
		cfg := testConfig()
		cfg.DatabaseDriver = config.DriverSQLite
		cfg.DatabasePath = t.TempDir() + "/nested/floodwatch.db"
		svc := service.New(cfg, service.WithLogger(logger.Nop()))

		Convey("Then the service opens and closes it", func() {
			So(svc.Start(ctx), ShouldBeNil)
			st, err := svc.SyncStatus(ctx)
			So(err, ShouldBeNil)
			So(st.Total, ShouldEqual, 0)
			So(svc.Stop(ctx), ShouldBeNil)
		})
	})

	Convey("Given an unreachable redis lock server", t, func() {
		cfg := testConfig()
		cfg.RedisAddr = "127.0.0.1:1"
		svc := service.New(cfg, service.WithLogger(logger.Nop()))

		Convey("Then start fails", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			So(svc.Start(ctx), ShouldNotBeNil)
		})
	})
}

func TestService_Operations(t *testing.T) {
	Convey("Given a started service with field data", t, func() {
		ctx := context.Background()
		svc, ds := startSeeded(ctx, testConfig())
		defer svc.Stop(ctx)

		Convey("When a far-from-site reading is analyzed", func() {
			var id int64
			for _, r := range ds.Tampered() {
				if r.Kind == fieldsim.FarFromSite {
					id = r.Submission.ID
				}
			}
			a, err := svc.Analyze(ctx, id)
			So(err, ShouldBeNil)
			dets, err := svc.Detections(ctx, id)
			So(err, ShouldBeNil)

			Convey("Then it is suspicious and its detections are stored", func() {
				So(a.TamperStatus, ShouldEqual, "suspicious")
				So(a.TamperScore, ShouldEqual, 0.9)
				So(len(dets), ShouldEqual, len(a.Detections))
			})
		})

		Convey("When an unknown submission is analyzed", func() {
			_, err := svc.Analyze(ctx, 9999)
			_, derr := svc.Detections(ctx, 9999)

			Convey("Then not found is returned", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(derr, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a batch runs with the configured window", func() {
			res, err := svc.RunBatch(ctx, 0)

			Convey("Then every scenario is found", func() {
				So(err, ShouldBeNil)
				So(res.TotalAnalyzed, ShouldEqual, len(ds.Readings))
				So(res.SuspiciousFound, ShouldBeGreaterThanOrEqualTo, len(fieldsim.Scenarios))
			})
		})

		Convey("When agent behavior is queried after a batch", func() {
			_, err := svc.RunBatch(ctx, 30)
			So(err, ShouldBeNil)
			honest, err := svc.AgentBehavior(ctx, ds.Agents[0].ID, 0)
			So(err, ShouldBeNil)
			far, err := svc.AgentBehavior(ctx, ds.Agents[4].ID, 7*24*time.Hour)
			So(err, ShouldBeNil)

			Convey("Then the default window holds only the honest agent's latest reading", func() {
				So(honest.TotalSubmissions, ShouldEqual, 1)
				So(honest.SuspiciousCount, ShouldEqual, 0)
			})

			Convey("Then the far agent has a suspicious reading", func() {
				So(far.SuspiciousCount, ShouldEqual, 1)
			})
		})

		Convey("When a blocking sync runs", func() {
			res, err := svc.RunSync(ctx)
			So(err, ShouldBeNil)
			st, _ := svc.SyncStatus(ctx)
			logs, _ := svc.SyncLogs(ctx, 1)

			Convey("Then every submission is synced through the mock transport", func() {
				So(res.Synced, ShouldEqual, len(ds.Readings))
				So(st.Pending, ShouldEqual, 0)
				So(logs[0].SyncType, ShouldEqual, "manual")
			})
		})

		Convey("When a quick sync runs", func() {
			res, err := svc.QuickSync(ctx)
			So(err, ShouldBeNil)

			Convey("Then everything is marked synced", func() {
				So(res.Status.Synced, ShouldEqual, len(ds.Readings))
				n, err := svc.MarkAllSynced(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When a sync is triggered", func() {
			res, err := svc.TriggerSync(ctx)
			So(err, ShouldBeNil)

			Convey("Then a pass starts", func() {
				So(res.Started, ShouldBeTrue)
			})
		})

		Convey("When the connection is tested", func() {
			st, err := svc.TestConnection(ctx)

			Convey("Then the mock transport answers", func() {
				So(err, ShouldBeNil)
				So(st.Success, ShouldBeTrue)
			})
		})
	})
}
