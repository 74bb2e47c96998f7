package tamper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/floodwatch/internal/adapters/repository"
	"github.com/okian/floodwatch/internal/domain/model"
	"github.com/okian/floodwatch/internal/domain/tamper"
	. "github.com/smartystreets/goconvey/convey"
)

const (
	siteLat = 17.3850
	siteLon = 78.4867
	// meters per degree of latitude on the haversine sphere
	metersPerDegree = 6_371_000.0 * 3.141592653589793 / 180
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctx   context.Context
	store *repository.MemoryStore
	site  model.Site
	user  model.User
}

func newFixture() *fixture {
	f := &fixture{ctx: context.Background(), store: repository.NewMemoryStore()}
	f.site = model.Site{Name: "musi bridge", Latitude: siteLat, Longitude: siteLon}
	So(f.store.CreateSite(f.ctx, &f.site), ShouldBeNil)
	f.user = model.User{Username: "agent"}
	So(f.store.CreateUser(f.ctx, &f.user), ShouldBeNil)
	return f
}

// good returns a well-formed on-site daytime reading.
func (f *fixture) good(at time.Time, level float64) *model.Submission {
	rating := 5
	return &model.Submission{
		UserID: f.user.ID, SiteID: f.site.ID, WaterLevel: level, Timestamp: at,
		GPSLatitude: siteLat, GPSLongitude: siteLon, LocationVerified: true,
		VerificationMethod: model.VerificationGPS, Notes: "gauge clearly visible", QualityRating: &rating,
	}
}

func (f *fixture) save(sub *model.Submission) *model.Submission {
	So(f.store.CreateSubmission(f.ctx, sub), ShouldBeNil)
	return sub
}

func rc(f *fixture) tamper.RuleContext {
	return tamper.RuleContext{History: f.store, Location: time.UTC}
}

func metersNorth(m float64) float64 { return siteLat + m/metersPerDegree }

func TestLocationMismatch(t *testing.T) {
	Convey("Given a site and readings at increasing distances", t, func() {
		f := newFixture()
		rule := tamper.LocationMismatch{}

		eval := func(meters float64, verified bool) *tamper.Finding {
			sub := f.good(now, 1)
			sub.GPSLatitude = metersNorth(meters)
			sub.LocationVerified = verified
			f.save(sub)
			got, err := rule.Evaluate(f.ctx, sub, rc(f))
			So(err, ShouldBeNil)
			return got
		}

		Convey("Then 1500m is critical", func() {
			got := eval(1500, true)
			So(got, ShouldNotBeNil)
			So(got.Severity, ShouldEqual, model.SeverityCritical)
			So(got.Confidence, ShouldEqual, 0.9)
			So(got.Description, ShouldEqual, "Submission location is 1500m from designated site")
		})

		Convey("Then 700m is high", func() {
			got := eval(700, true)
			So(got.Severity, ShouldEqual, model.SeverityHigh)
			So(got.Confidence, ShouldEqual, 0.7)
		})

		Convey("Then 300m unverified is medium", func() {
			got := eval(300, false)
			So(got.Severity, ShouldEqual, model.SeverityMedium)
			So(got.Confidence, ShouldEqual, 0.5)
			So(got.Description, ShouldContainSubstring, "Location verification failed")
		})

		Convey("Then 300m verified does not fire", func() {
			So(eval(300, true), ShouldBeNil)
		})

		Convey("Then an unknown site does not fire", func() {
			sub := f.good(now, 1)
			sub.SiteID = 999
			got, err := rule.Evaluate(f.ctx, sub, rc(f))
			So(err, ShouldBeNil)
			So(got, ShouldBeNil)
		})
	})
}

func TestTimeAnomaly(t *testing.T) {
	Convey("Given an agent reporting from one site", t, func() {
		f := newFixture()
		rule := tamper.TimeAnomaly{}

		Convey("When three readings precede this one within the hour", func() {
			for _, m := range []int{50, 30, 10} {
				f.save(f.good(now.Add(-time.Duration(m)*time.Minute), float64(m)))
			}
			sub := f.save(f.good(now, 5))
			got, err := rule.Evaluate(f.ctx, sub, rc(f))

			Convey("Then a high burst anomaly fires counting all four", func() {
				So(err, ShouldBeNil)
				So(got.Severity, ShouldEqual, model.SeverityHigh)
				So(got.Confidence, ShouldEqual, 0.8)
				So(got.Description, ShouldEqual, "Multiple submissions (4) in quick succession")
			})
		})

		Convey("When only two readings precede it", func() {
			f.save(f.good(now.Add(-20*time.Minute), 1))
			f.save(f.good(now.Add(-61*time.Minute), 1))
			f.save(f.good(now.Add(-10*time.Minute), 1))
			sub := f.save(f.good(now, 1))
			got, err := rule.Evaluate(f.ctx, sub, rc(f))

			Convey("Then nothing fires during the day", func() {
				So(err, ShouldBeNil)
				So(got, ShouldBeNil)
			})
		})

		Convey("When a reading is taken at 23:00", func() {
			sub := f.save(f.good(time.Date(2025, 6, 1, 23, 15, 0, 0, time.UTC), 1))
			got, err := rule.Evaluate(f.ctx, sub, rc(f))

			Convey("Then a medium unusual-hours anomaly fires", func() {
				So(err, ShouldBeNil)
				So(got.Severity, ShouldEqual, model.SeverityMedium)
				So(got.Confidence, ShouldEqual, 0.4)
				So(got.Description, ShouldEqual, "Submission made during unusual hours (23:00)")
			})
		})

		Convey("When the hour is evaluated in the site time zone", func() {
			ist := time.FixedZone("IST", 5*3600+1800)
			sub := f.save(f.good(time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC), 1))
			got, err := rule.Evaluate(f.ctx, sub, tamper.RuleContext{History: f.store, Location: ist})

			Convey("Then local night time fires", func() {
				So(err, ShouldBeNil)
				So(got.Description, ShouldEqual, "Submission made during unusual hours (23:00)")
			})
		})

		Convey("When a reading is taken at 05:59 and 06:00", func() {
			early := f.save(f.good(time.Date(2025, 6, 1, 5, 59, 0, 0, time.UTC), 1))
			dawn := f.save(f.good(time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC), 1))

			Convey("Then only the first fires", func() {
				got, _ := rule.Evaluate(f.ctx, early, rc(f))
				So(got, ShouldNotBeNil)
				got, _ = rule.Evaluate(f.ctx, dawn, rc(f))
				So(got, ShouldBeNil)
			})
		})
	})
}

func TestDuplicateSubmission(t *testing.T) {
	Convey("Given three prior near-identical readings within 30 minutes", t, func() {
		f := newFixture()
		for i, lvl := range []float64{2.00, 2.03, 2.05} {
			f.save(f.good(now.Add(-time.Duration(25-i*5)*time.Minute), lvl))
		}
		rule := tamper.DuplicateSubmission{}

		Convey("When a matching reading arrives", func() {
			sub := f.save(f.good(now, 2.02))
			got, err := rule.Evaluate(f.ctx, sub, rc(f))

			Convey("Then a duplicate fires with confidence 0.6", func() {
				So(err, ShouldBeNil)
				So(got.Type, ShouldEqual, model.DetectionDuplicate)
				So(got.Severity, ShouldEqual, model.SeverityMedium)
				So(got.Confidence, ShouldEqual, 0.6)
			})
		})

		Convey("When the level differs by more than 0.1", func() {
			sub := f.save(f.good(now, 2.5))
			got, err := rule.Evaluate(f.ctx, sub, rc(f))

			Convey("Then nothing fires", func() {
				So(err, ShouldBeNil)
				So(got, ShouldBeNil)
			})
		})
	})
}

func TestPatternAnomaly(t *testing.T) {
	Convey("Given an agent with a stable history", t, func() {
		f := newFixture()
		rule := tamper.PatternAnomaly{}
		for d := 5; d >= 1; d-- {
			f.save(f.good(now.Add(-time.Duration(d)*24*time.Hour), 1.0))
		}

		Convey("When a wild jump is stored", func() {
			sub := f.save(f.good(now, 10.0))
			got, err := rule.Evaluate(f.ctx, sub, rc(f))

			Convey("Then a high pattern anomaly fires against the recent average", func() {
				So(err, ShouldBeNil)
				So(got.Severity, ShouldEqual, model.SeverityHigh)
				So(got.Confidence, ShouldEqual, 0.7)
				So(got.Description, ShouldEqual, "Unusual water level change: 6.0m from recent average")
			})
		})

		Convey("When a modest change is stored", func() {
			sub := f.save(f.good(now, 2.5))
			got, err := rule.Evaluate(f.ctx, sub, rc(f))

			Convey("Then nothing fires", func() {
				So(err, ShouldBeNil)
				So(got, ShouldBeNil)
			})
		})
	})

	Convey("Given an agent with fewer than three readings", t, func() {
		f := newFixture()
		f.save(f.good(now.Add(-time.Hour), 1.0))
		sub := f.save(f.good(now, 50.0))

		Convey("Then nothing fires", func() {
			got, err := tamper.PatternAnomaly{}.Evaluate(f.ctx, sub, rc(f))
			So(err, ShouldBeNil)
			So(got, ShouldBeNil)
		})
	})
}

func TestQualityAnomaly(t *testing.T) {
	Convey("Given the quality rule", t, func() {
		rule := tamper.QualityAnomaly{}
		f := newFixture()

		Convey("When every issue is present", func() {
			sub := f.good(now, 1)
			sub.QualityRating = nil
			sub.Notes = "   short  "
			sub.LocationVerified = false
			got, err := rule.Evaluate(f.ctx, sub, rc(f))

			Convey("Then the description lists all issues", func() {
				So(err, ShouldBeNil)
				So(got.Confidence, ShouldEqual, 0.5)
				So(got.Description, ShouldEqual,
					"Quality issues: Low quality rating, Minimal or missing notes, Location not verified")
			})
		})

		Convey("When only the rating is low", func() {
			sub := f.good(now, 1)
			low := 2
			sub.QualityRating = &low
			got, _ := rule.Evaluate(f.ctx, sub, rc(f))

			Convey("Then only that issue is listed", func() {
				So(got.Description, ShouldEqual, "Quality issues: Low quality rating")
			})
		})

		Convey("When the reading is complete", func() {
			got, err := rule.Evaluate(f.ctx, f.good(now, 1), rc(f))

			Convey("Then nothing fires", func() {
				So(err, ShouldBeNil)
				So(got, ShouldBeNil)
			})
		})
	})
}

type panicRule struct{}

func (panicRule) Name() string { return "exploding" }
func (panicRule) Evaluate(context.Context, *model.Submission, tamper.RuleContext) (*tamper.Finding, error) {
	panic("nil site")
}

type errRule struct{}

func (errRule) Name() string { return "broken" }
func (errRule) Evaluate(context.Context, *model.Submission, tamper.RuleContext) (*tamper.Finding, error) {
	return nil, errors.New("query timeout")
}

func TestAnalyzeSubmission(t *testing.T) {
	Convey("Given an engine over a store", t, func() {
		f := newFixture()
		engine := tamper.New(f.store, tamper.WithClock(func() time.Time { return now }))

		Convey("When a far, unverified, poorly documented reading is analyzed", func() {
			sub := f.good(now, 1.0)
			sub.GPSLatitude = metersNorth(1200)
			sub.LocationVerified = false
			low := 2
			sub.QualityRating = &low
			sub.Notes = ""
			f.save(sub)

			dets, err := engine.AnalyzeSubmission(f.ctx, sub)
			So(err, ShouldBeNil)

			Convey("Then location and quality fire and the score is the maximum", func() {
				So(len(dets), ShouldEqual, 2)
				So(dets[0].Type, ShouldEqual, model.DetectionLocationMismatch)
				So(dets[0].Severity, ShouldEqual, model.SeverityCritical)
				So(dets[0].ConfidenceScore, ShouldEqual, 0.9)
				So(dets[1].Type, ShouldEqual, model.DetectionQualityAnomaly)
				So(dets[1].ConfidenceScore, ShouldEqual, 0.5)

				stored, err := f.store.GetSubmission(f.ctx, sub.ID)
				So(err, ShouldBeNil)
				So(stored.TamperScore, ShouldEqual, 0.9)
				So(stored.TamperStatus, ShouldEqual, model.TamperSuspect)
				So(stored.LastTamperCheck.Equal(now), ShouldBeTrue)
				So(sub.TamperStatus, ShouldEqual, model.TamperSuspect)
			})

			Convey("Then re-analysis yields the same score and types while appending rows", func() {
				again, err := engine.AnalyzeSubmission(f.ctx, sub)
				So(err, ShouldBeNil)
				So(len(again), ShouldEqual, len(dets))
				for i := range again {
					So(again[i].Type, ShouldEqual, dets[i].Type)
				}
				stored, _ := f.store.GetSubmission(f.ctx, sub.ID)
				So(stored.TamperScore, ShouldEqual, 0.9)
				rows, _ := f.store.ListDetections(f.ctx, sub.ID)
				So(len(rows), ShouldEqual, 4)
			})
		})

		Convey("When a clean reading is analyzed", func() {
			sub := f.save(f.good(now, 1.0))
			dets, err := engine.AnalyzeByID(f.ctx, sub.ID)

			Convey("Then the score is zero and the status clean", func() {
				So(err, ShouldBeNil)
				So(dets, ShouldBeEmpty)
				stored, _ := f.store.GetSubmission(f.ctx, sub.ID)
				So(stored.TamperScore, ShouldEqual, 0)
				So(stored.TamperStatus, ShouldEqual, model.TamperClean)
			})
		})

		Convey("When a rule panics or errors", func() {
			engine := tamper.New(f.store, tamper.WithRules(panicRule{}, errRule{}, tamper.QualityAnomaly{}))
			sub := f.good(now, 1.0)
			sub.LocationVerified = false
			f.save(sub)
			dets, err := engine.AnalyzeSubmission(f.ctx, sub)

			Convey("Then the remaining rules still run", func() {
				So(err, ShouldBeNil)
				So(len(dets), ShouldEqual, 1)
				So(dets[0].Type, ShouldEqual, model.DetectionQualityAnomaly)
				So(sub.TamperStatus, ShouldEqual, model.TamperClean)
			})
		})

		Convey("When the submission was externally confirmed as tampered", func() {
			sub := f.save(f.good(now, 1.0))
			So(f.store.SaveTamperResult(f.ctx, repository.TamperResult{
				SubmissionID: sub.ID, Score: 1, Status: model.TamperConfirmed, CheckedAt: now,
			}), ShouldBeNil)
			sub, _ = f.store.GetSubmission(f.ctx, sub.ID)
			_, err := engine.AnalyzeSubmission(f.ctx, sub)

			Convey("Then the confirmation is preserved", func() {
				So(err, ShouldBeNil)
				stored, _ := f.store.GetSubmission(f.ctx, sub.ID)
				So(stored.TamperStatus, ShouldEqual, model.TamperConfirmed)
				So(stored.TamperScore, ShouldEqual, 0)
			})
		})

		Convey("When the submission id is unknown", func() {
			_, err := engine.AnalyzeByID(f.ctx, 404)

			Convey("Then ErrNotFound surfaces", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("Then the registered rules are reported in order", func() {
			So(engine.Rules(), ShouldResemble, []string{
				"location_mismatch", "time_anomaly", "duplicate_submission", "pattern_anomaly", "quality_anomaly",
			})
		})
	})
}

func TestRunBatchAnalysis(t *testing.T) {
	Convey("Given submissions inside and outside the window", t, func() {
		f := newFixture()
		engine := tamper.New(f.store, tamper.WithClock(func() time.Time { return now }))

		far := f.good(now.Add(-48*time.Hour), 1.0)
		far.GPSLatitude = metersNorth(800)
		f.save(far)
		f.save(f.good(now.Add(-72*time.Hour), 1.0))
		confirmed := f.save(f.good(now.Add(-24*time.Hour), 1.0))
		So(f.store.SaveTamperResult(f.ctx, repository.TamperResult{
			SubmissionID: confirmed.ID, Score: 1, Status: model.TamperConfirmed, CheckedAt: now,
		}), ShouldBeNil)
		f.save(f.good(now.Add(-40*24*time.Hour), 1.0))

		Convey("When a 30 day batch runs", func() {
			res, err := engine.RunBatchAnalysis(f.ctx, 30)

			Convey("Then confirmed and old submissions are skipped", func() {
				So(err, ShouldBeNil)
				So(res.TotalAnalyzed, ShouldEqual, 2)
				So(res.SuspiciousFound, ShouldEqual, 1)
				So(res.DetectionsByType[model.DetectionLocationMismatch], ShouldEqual, 1)
				So(res.DetectionsBySeverity[model.SeverityHigh], ShouldEqual, 1)
				So(res.Failed, ShouldEqual, 0)
			})
		})

		Convey("When the window is not positive", func() {
			_, err := engine.RunBatchAnalysis(f.ctx, 0)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, tamper.ErrInvalidDays), ShouldBeTrue)
			})
		})
	})
}

func TestMonitorAgentBehavior(t *testing.T) {
	Convey("Given an agent with scored submissions", t, func() {
		f := newFixture()
		engine := tamper.New(f.store, tamper.WithClock(func() time.Time { return now }))

		scored := func(scores ...float64) {
			for i, s := range scores {
				sub := f.save(f.good(now.Add(-time.Duration(i+1)*time.Hour), 1))
				So(f.store.SaveTamperResult(f.ctx, repository.TamperResult{
					SubmissionID: sub.ID, Score: s, Status: model.StatusForScore(s), CheckedAt: now,
				}), ShouldBeNil)
			}
		}

		Convey("When there is no recent activity", func() {
			f.save(f.good(now.Add(-48*time.Hour), 1))
			rep, err := engine.MonitorAgentBehavior(f.ctx, f.user.ID, 24*time.Hour)

			Convey("Then the agent is normal", func() {
				So(err, ShouldBeNil)
				So(rep.Status, ShouldEqual, tamper.AgentNormal)
				So(rep.Message, ShouldEqual, "No recent activity")
			})
		})

		Convey("When most readings are suspicious", func() {
			scored(0.9, 0.8, 0.2)
			rep, err := engine.MonitorAgentBehavior(f.ctx, f.user.ID, 24*time.Hour)

			Convey("Then the agent is critical", func() {
				So(err, ShouldBeNil)
				So(rep.Status, ShouldEqual, tamper.AgentCritical)
				So(rep.TotalSubmissions, ShouldEqual, 3)
				So(rep.SuspiciousCount, ShouldEqual, 2)
				So(rep.AvgTamperScore, ShouldAlmostEqual, 0.6333333, 1e-6)
			})
		})

		Convey("When a third are suspicious", func() {
			scored(0.9, 0.1, 0.1)
			rep, _ := engine.MonitorAgentBehavior(f.ctx, f.user.ID, 24*time.Hour)
			So(rep.Status, ShouldEqual, tamper.AgentHigh)
		})

		Convey("When a quarter are suspicious", func() {
			scored(0.9, 0.1, 0.1, 0.6)
			rep, _ := engine.MonitorAgentBehavior(f.ctx, f.user.ID, 24*time.Hour)
			So(rep.Status, ShouldEqual, tamper.AgentMedium)
			So(rep.SuspiciousRatio, ShouldEqual, 0.25)
		})

		Convey("When none exceed 0.7", func() {
			scored(0.7, 0.5)
			rep, _ := engine.MonitorAgentBehavior(f.ctx, f.user.ID, 24*time.Hour)
			So(rep.Status, ShouldEqual, tamper.AgentNormal)
			So(rep.Message, ShouldBeEmpty)
		})
	})
}
