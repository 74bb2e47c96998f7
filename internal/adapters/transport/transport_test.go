package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/floodwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func payload() model.SyncPayload {
	return model.NewSyncPayload(&model.Submission{
		ID: 42, UserID: 1, SiteID: 2, WaterLevel: 3.4,
		Timestamp:          time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		VerificationMethod: model.VerificationGPS, PhotoFilename: "gauge.jpg",
	})
}

func TestHTTPClientDeliver(t *testing.T) {
	Convey("Given a sync endpoint", t, func() {
		var (
			gotBody   map[string]any
			gotHeader http.Header
			reply     = `{"success":true,"server_id":"SRV_1","server_timestamp":"2025-01-02T03:04:06Z"}`
			status    = http.StatusOK
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotHeader = r.Header.Clone()
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &gotBody)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(reply))
		}))
		defer srv.Close()

		c, err := NewHTTPClient(srv.URL, WithTimeout(2*time.Second))
		So(err, ShouldBeNil)

		Convey("When the server accepts the payload", func() {
			rec, err := c.Deliver(context.Background(), payload())

			Convey("Then the receipt is returned and the payload was posted as JSON", func() {
				So(err, ShouldBeNil)
				So(rec.ServerID, ShouldEqual, "SRV_1")
				So(rec.ServerTimestamp.Equal(time.Date(2025, 1, 2, 3, 4, 6, 0, time.UTC)), ShouldBeTrue)
				So(gotBody["submission_id"], ShouldEqual, 42)
				So(gotBody["tamper_score"], ShouldBeNil)
				So(gotHeader.Get("X-Request-ID"), ShouldNotBeEmpty)
			})
		})

		Convey("When the server rejects the payload", func() {
			reply = `{"success":false,"error":"duplicate submission"}`
			_, err := c.Deliver(context.Background(), payload())

			Convey("Then a delivery error carries the reason", func() {
				So(errors.Is(err, ErrDelivery), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "duplicate submission")
			})
		})

		Convey("When the server fails", func() {
			status = http.StatusInternalServerError
			reply = `{}`
			_, err := c.Deliver(context.Background(), payload())

			Convey("Then the status is reported", func() {
				So(errors.Is(err, ErrDelivery), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "500")
			})
		})

		Convey("When probing the endpoint", func() {
			st := c.Ping(context.Background())

			Convey("Then it succeeds", func() {
				So(st.Success, ShouldBeTrue)
				So(st.StatusCode, ShouldEqual, http.StatusOK)
			})
		})
	})

	Convey("Given no endpoint", t, func() {
		_, err := NewHTTPClient("")
		So(errors.Is(err, ErrNoEndpoint), ShouldBeTrue)
	})
}

func TestHTTPClientTransferPhoto(t *testing.T) {
	Convey("Given an upload directory and a photo endpoint", t, func() {
		dir := t.TempDir()
		So(os.WriteFile(filepath.Join(dir, "gauge.jpg"), []byte("jpegdata"), 0o600), ShouldBeNil)

		var uploaded string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			file, _, err := r.FormFile("photo")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			raw, _ := io.ReadAll(file)
			uploaded = string(raw)
			w.WriteHeader(http.StatusCreated)
		}))
		defer srv.Close()

		c, err := NewHTTPClient(srv.URL, WithUploadDir(dir))
		So(err, ShouldBeNil)

		Convey("When the photo exists", func() {
			err := c.TransferPhoto(context.Background(), "gauge.jpg")

			Convey("Then its bytes are uploaded", func() {
				So(err, ShouldBeNil)
				So(uploaded, ShouldEqual, "jpegdata")
			})
		})

		Convey("When the photo is missing", func() {
			err := c.TransferPhoto(context.Background(), "absent.jpg")

			Convey("Then it is tolerated and nothing is uploaded", func() {
				So(err, ShouldBeNil)
				So(uploaded, ShouldBeEmpty)
			})
		})

		Convey("When no photo is attached", func() {
			So(c.TransferPhoto(context.Background(), ""), ShouldBeNil)
		})
	})

	Convey("Given a photo endpoint that fails", t, func() {
		dir := t.TempDir()
		So(os.WriteFile(filepath.Join(dir, "gauge.jpg"), []byte("x"), 0o600), ShouldBeNil)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()
		c, _ := NewHTTPClient(srv.URL, WithUploadDir(dir))

		Convey("Then the transfer error is returned", func() {
			err := c.TransferPhoto(context.Background(), "gauge.jpg")
			So(errors.Is(err, ErrPhotoTransfer), ShouldBeTrue)
			So(c.Ping(context.Background()).Success, ShouldBeFalse)
		})
	})
}

func TestMockTransport(t *testing.T) {
	Convey("Given the demo transport", t, func() {
		m := NewMockServer()

		Convey("Then every delivery gets a distinct SRV_ id", func() {
			a, err := m.Deliver(context.Background(), payload())
			So(err, ShouldBeNil)
			b, _ := m.Deliver(context.Background(), payload())
			So(strings.HasPrefix(a.ServerID, "SRV_"), ShouldBeTrue)
			So(a.ServerID, ShouldNotEqual, b.ServerID)
		})

		Convey("Then a cancelled context fails the delivery", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := m.Deliver(ctx, payload())
			So(err, ShouldNotBeNil)
		})

		Convey("Then the connection probe reports demo mode", func() {
			st := m.Ping(context.Background())
			So(st.Success, ShouldBeTrue)
			So(st.Message, ShouldContainSubstring, "Demo Mode")
		})

		Convey("Then missing local photos are tolerated", func() {
			p := NewLocalPhotoCheck(WithUploadDir(t.TempDir()))
			So(p.TransferPhoto(context.Background(), "nowhere.jpg"), ShouldBeNil)
		})
	})
}

func TestGCSPhotos(t *testing.T) {
	Convey("Given cloud storage settings", t, func() {
		Convey("Then a bucket is required", func() {
			_, err := NewGCSPhotos(context.Background(), "")
			So(errors.Is(err, ErrNoBucket), ShouldBeTrue)
		})

		Convey("Then object names are prefixed and stripped of directories", func() {
			g := &GCSPhotos{bucket: "b", opts: apply([]Option{WithObjectPrefix("/photos/")})}
			So(g.ObjectName("../uploads/gauge.jpg"), ShouldEqual, "photos/gauge.jpg")
			g = &GCSPhotos{bucket: "b", opts: apply(nil)}
			So(g.ObjectName("gauge.jpg"), ShouldEqual, "gauge.jpg")
		})

		Convey("Then a missing local photo is tolerated before any upload", func() {
			g := &GCSPhotos{bucket: "b", opts: apply([]Option{WithUploadDir(t.TempDir())})}
			So(g.TransferPhoto(context.Background(), "absent.jpg"), ShouldBeNil)
		})
	})
}
