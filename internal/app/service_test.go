package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rcagrade/internal/adapters/http/api"
	"github.com/okian/rcagrade/internal/adapters/source"
	service "github.com/okian/rcagrade/internal/app"
	"github.com/okian/rcagrade/internal/domain/session"
	"github.com/okian/rcagrade/pkg/logger"
)

var _ api.Dependencies = (*service.Service)(nil)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

const incidentsCSV = `issue_key,summary,description,root_cause,resolution,preventive_action
INC-1,Checkout slow,p99 4s,pool exhausted,raised pool,alert on pool
INC-2,Disk full,writes failed,rotation off,rotated,disk alerts
`

const evaluationJSON = `{"scores":{"clarity":15,"depth":12,"evidence":10,"corrective":14,"preventive":13},"total":64,"strengths":[],"gaps":[],"improvements":[],"executive_summary":"ok"}`

// cannedGenerator answers every prompt with the same JSON.
type cannedGenerator struct {
	response string
	calls    int
}

func (g *cannedGenerator) GenerateJSON(context.Context, string, float64, time.Duration) (json.RawMessage, error) {
	g.calls++
	return json.RawMessage(g.response), nil
}

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "incidents.csv")
	if err := os.WriteFile(path, []byte(incidentsCSV), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			So(svc.ListLimit(), ShouldEqual, 20)
			So(svc.DefaultColumnMap(), ShouldResemble, source.DefaultColumnMap())
		})
	})

	Convey("Given a new service with custom options", t, func() {
		m := source.DefaultColumnMap()
		m.ID = "key"
		svc := service.New(
			service.WithModel("tiny"),
			service.WithHost("http://ollama:11434"),
			service.WithListLimit(5),
			service.WithColumnMap(m),
			service.WithSessionTTL(0),
		)

		Convey("Then the options should apply", func() {
			So(svc.ListLimit(), ShouldEqual, 5)
			So(svc.DefaultColumnMap().ID, ShouldEqual, "key")
			So(svc.GetStats(context.Background())["model"], ShouldEqual, "tiny")
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithDataPath(writeCSV(t)), service.WithGenerator(&cannedGenerator{response: evaluationJSON}))
		// Ensure service is stopped after test
		defer svc.Stop()

		Convey("Operations fail before start", func() {
			_, err := svc.Columns(context.Background())
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("And it should be marked as started", func() {
				stats := svc.GetStats(ctx)
				So(stats["started"], ShouldEqual, true)
				So(stats["sessions"], ShouldEqual, 0)
			})

			Convey("And stopping twice should be safe", func() {
				svc.Stop()
				svc.Stop()
				So(svc.GetStats(ctx)["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_Operations(t *testing.T) {
	Convey("Given a started service over a small CSV", t, func() {
		ctx := context.Background()
		gen := &cannedGenerator{response: evaluationJSON}
		svc := service.New(service.WithDataPath(writeCSV(t)), service.WithGenerator(gen))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		m := svc.DefaultColumnMap()

		Convey("Columns and listings come from the file", func() {
			cols, err := svc.Columns(ctx)
			So(err, ShouldBeNil)
			So(cols, ShouldHaveLength, 6)

			list, err := svc.ListIncidents(ctx, 1)
			So(err, ShouldBeNil)
			So(list, ShouldResemble, []source.Listing{{IncidentID: "INC-1", Summary: "Checkout slow"}})
		})

		Convey("EvaluateIncident does not touch sessions", func() {
			res, err := svc.EvaluateIncident(ctx, m, "INC-2")
			So(err, ShouldBeNil)
			So(res.Total, ShouldEqual, 64)

			_, err = svc.Session(ctx, "INC-2")
			So(errors.Is(err, session.ErrNotFound), ShouldBeTrue)
		})

		Convey("Unknown incidents never reach the model", func() {
			_, err := svc.EvaluateIncident(ctx, m, "INC-9")
			So(errors.Is(err, source.ErrNotFound), ShouldBeTrue)
			So(gen.calls, ShouldEqual, 0)
		})

		Convey("Critique needs an evaluation first", func() {
			_, err := svc.SessionCritique(ctx, m, "INC-1")
			So(errors.Is(err, session.ErrNoEvaluation), ShouldBeTrue)
			So(gen.calls, ShouldEqual, 0)

			st, err := svc.SessionEvaluate(ctx, m, "INC-1")
			So(err, ShouldBeNil)
			So(st.Evaluation.Total, ShouldEqual, 64)
		})

		Convey("Reload picks up file changes", func() {
			_, err := svc.Columns(ctx)
			So(err, ShouldBeNil)

			svc.ReloadSource(ctx)
			_, err = svc.GetIncident(ctx, m, "INC-2")
			So(err, ShouldBeNil)
		})
	})
}
