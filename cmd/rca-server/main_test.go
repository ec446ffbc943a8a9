package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	app "github.com/okian/rcagrade/internal/app"
	"github.com/okian/rcagrade/internal/config"
	"github.com/okian/rcagrade/pkg/logger"
)

const incidentsCSV = `key,title,description,root_cause,resolution,preventive_action
INC-7,Queue backlog,consumers stalled,bad deploy,rolled back,canary
`

func TestColumnMap(t *testing.T) {
	convey.Convey("Given configuration with renamed columns", t, func() {
		cfg := config.New()
		cfg.ColID = "key"
		cfg.ColSummary = "title"

		convey.Convey("Then the column map follows it", func() {
			m := columnMap(cfg)
			convey.So(m.ID, convey.ShouldEqual, "key")
			convey.So(m.Summary, convey.ShouldEqual, "title")
			convey.So(m.Description, convey.ShouldEqual, cfg.ColDescription)
			convey.So(m.PreventiveAction, convey.ShouldEqual, cfg.ColPreventive)
		})
	})
}

func TestConfigFromEnv(t *testing.T) {
	convey.Convey("Given RCA_ environment overrides", t, func() {
		t.Setenv("RCA_ADDR", ":9999")
		t.Setenv("RCA_MODEL", "tiny:1b")
		t.Setenv("RCA_LIST_LIMIT", "3")

		convey.Convey("Then the service options carry them", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":9999")

			svc := app.New(serviceOptions(cfg, logger.Nop())...)
			convey.So(svc.ListLimit(), convey.ShouldEqual, 3)
		})
	})
}

func TestNewHandler(t *testing.T) {
	convey.Convey("Given a started service behind the server mux", t, func() {
		path := filepath.Join(t.TempDir(), "incidents.csv")
		convey.So(os.WriteFile(path, []byte(incidentsCSV), 0o600), convey.ShouldBeNil)

		cfg := config.New()
		cfg.DataPath = path
		cfg.ColID = "key"
		cfg.ColSummary = "title"

		ctx := context.Background()
		svc := app.New(serviceOptions(cfg, logger.Nop())...)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		h, err := newHandler(ctx, svc, logger.Nop())
		convey.So(err, convey.ShouldBeNil)

		get := func(target string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, http.NoBody))
			return w
		}

		convey.Convey("Then the tool routes answer", func() {
			w := get("/incidents/INC-7")
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)

			var body map[string]any
			convey.So(json.Unmarshal(w.Body.Bytes(), &body), convey.ShouldBeNil)
			convey.So(body["summary"], convey.ShouldEqual, "Queue backlog")
			convey.So(get("/healthz").Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("And the docs routes answer", func() {
			convey.So(get("/openapi.yaml").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/api-docs").Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("And metrics are exposed", func() {
			convey.So(get("/metrics").Code, convey.ShouldEqual, http.StatusOK)
		})
	})
}
