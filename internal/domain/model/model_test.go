package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/floodwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStatusForScore(t *testing.T) {
	Convey("Given aggregate tamper scores", t, func() {
		Convey("Then scores above 0.5 are suspicious and the rest clean", func() {
			So(model.StatusForScore(0.9), ShouldEqual, model.TamperSuspect)
			So(model.StatusForScore(0.51), ShouldEqual, model.TamperSuspect)
			So(model.StatusForScore(0.5), ShouldEqual, model.TamperClean)
			So(model.StatusForScore(0), ShouldEqual, model.TamperClean)
		})
	})
}

func TestSeverityRank(t *testing.T) {
	Convey("Given the severity levels", t, func() {
		Convey("Then they are ordered low < medium < high < critical", func() {
			So(model.SeverityLow.Rank(), ShouldBeLessThan, model.SeverityMedium.Rank())
			So(model.SeverityMedium.Rank(), ShouldBeLessThan, model.SeverityHigh.Rank())
			So(model.SeverityHigh.Rank(), ShouldBeLessThan, model.SeverityCritical.Rank())
			So(model.Severity("bogus").Rank(), ShouldEqual, 0)
		})
	})
}

func TestSyncStatus(t *testing.T) {
	Convey("Given the sync statuses", t, func() {
		Convey("Then only pending and failed are retryable", func() {
			So(model.SyncPending.Retryable(), ShouldBeTrue)
			So(model.SyncFailed.Retryable(), ShouldBeTrue)
			So(model.SyncSynced.Retryable(), ShouldBeFalse)
			So(model.SyncStatus("lost").Valid(), ShouldBeFalse)
		})
	})
}

func TestNewSyncPayload(t *testing.T) {
	Convey("Given a submission", t, func() {
		ts := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
		rating := 4
		sub := &model.Submission{
			ID: 9, UserID: 2, SiteID: 3, WaterLevel: 1.25, Timestamp: ts,
			GPSLatitude: 1.5, GPSLongitude: 2.5, PhotoFilename: "p.jpg",
			VerificationMethod: model.VerificationGPS, QualityRating: &rating,
		}

		Convey("When it has not been analyzed", func() {
			raw, err := json.Marshal(model.NewSyncPayload(sub))
			So(err, ShouldBeNil)
			var m map[string]any
			So(json.Unmarshal(raw, &m), ShouldBeNil)

			Convey("Then tamper fields and created_at are null and timestamp is ISO-8601", func() {
				So(m["tamper_score"], ShouldBeNil)
				So(m["tamper_status"], ShouldBeNil)
				So(m["created_at"], ShouldBeNil)
				So(m["timestamp"], ShouldEqual, "2025-03-04T10:30:00Z")
				So(m["submission_id"], ShouldEqual, 9)
				So(m["quality_rating"], ShouldEqual, 4)
			})
		})

		Convey("When it has been analyzed", func() {
			checked := ts.Add(time.Minute)
			sub.LastTamperCheck = &checked
			sub.TamperScore = 0.9
			sub.TamperStatus = model.TamperSuspect
			p := model.NewSyncPayload(sub)

			Convey("Then tamper fields are carried", func() {
				So(*p.TamperScore, ShouldEqual, 0.9)
				So(*p.TamperStatus, ShouldEqual, model.TamperSuspect)
			})
		})
	})
}
