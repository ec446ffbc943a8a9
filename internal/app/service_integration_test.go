package service_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rcagrade/internal/adapters/http/api"
	service "github.com/okian/rcagrade/internal/app"
)

// fakeOllama routes on prompt wording and wraps the evaluation in prose so
// the fallback extraction path is exercised.
func fakeOllama(calls *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		var text string
		switch {
		case strings.Contains(req.Prompt, "critic agent"):
			text = `{"top_risks":["no logs"],"missing_evidence_requests":["pool metrics"],"confidence":"medium"}`
		case strings.Contains(req.Prompt, "improvement agent"):
			text = `{"improved_root_cause":"Pool capped at 10 [NEEDED: config diff]","improved_resolution":"Raised to 50","improved_preventive_action":"Saturation alert","notes":["timeline missing"]}`
		default:
			text = "Here is the review:\n```json\n" + evaluationJSON + "\n```\nLet me know!"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": text, "done": true})
	}))
}

func getJSON(t *testing.T, method, url string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service with full integration", t, func() {
		var calls atomic.Int32
		ollama := fakeOllama(&calls)
		defer ollama.Close()

		svc := service.New(
			service.WithHost(ollama.URL),
			service.WithDataPath(writeCSV(t)),
			service.WithTimeout(5*time.Second),
		)
		defer svc.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)

		mux := http.NewServeMux()
		So(api.NewServer(svc).Register(ctx, mux), ShouldBeNil)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When evaluating one incident by id", func() {
			status, body := getJSON(t, http.MethodPost, srv.URL+"/incidents/INC-1/evaluate")

			Convey("Then the wrapped JSON is recovered and validated", func() {
				So(status, ShouldEqual, http.StatusOK)
				So(body["total"], ShouldEqual, float64(64))
				So(calls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When driving a session end-to-end", func() {
			status, _ := getJSON(t, http.MethodPost, srv.URL+"/sessions/INC-2/critique")
			So(status, ShouldEqual, http.StatusConflict)
			So(calls.Load(), ShouldEqual, 0)

			status, _ = getJSON(t, http.MethodPost, srv.URL+"/sessions/INC-2/evaluate")
			So(status, ShouldEqual, http.StatusOK)
			status, _ = getJSON(t, http.MethodPost, srv.URL+"/sessions/INC-2/critique")
			So(status, ShouldEqual, http.StatusOK)
			status, _ = getJSON(t, http.MethodPost, srv.URL+"/sessions/INC-2/improve")
			So(status, ShouldEqual, http.StatusOK)

			Convey("Then every slot is filled", func() {
				status, body := getJSON(t, http.MethodGet, srv.URL+"/sessions/INC-2")
				So(status, ShouldEqual, http.StatusOK)
				So(body["evaluation"], ShouldNotBeNil)
				So(body["critique"].(map[string]any)["confidence"], ShouldEqual, "medium")
				So(body["improvement"].(map[string]any)["improved_root_cause"], ShouldContainSubstring, "[NEEDED:")
				So(calls.Load(), ShouldEqual, 3)
			})

			Convey("And re-evaluating clears the downstream slots", func() {
				status, body := getJSON(t, http.MethodPost, srv.URL+"/sessions/INC-2/evaluate")
				So(status, ShouldEqual, http.StatusOK)
				So(body["critique"], ShouldBeNil)
				So(body["improvement"], ShouldBeNil)
			})
		})

		Convey("When a critique resolves the incident under another mapping", func() {
			status, _ := getJSON(t, http.MethodPost, srv.URL+"/sessions/INC-1/evaluate")
			So(status, ShouldEqual, http.StatusOK)

			status, body := getJSON(t, http.MethodPost, srv.URL+"/sessions/INC-1/critique?col_root_cause=description")

			Convey("Then it is refused before any model call", func() {
				So(status, ShouldEqual, http.StatusConflict)
				So(body["code"], ShouldEqual, "incident_mismatch")
				So(calls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the inference service is down", func() {
			ollama.Close()
			status, body := getJSON(t, http.MethodPost, srv.URL+"/incidents/INC-1/evaluate")

			Convey("Then the caller gets a bad gateway", func() {
				So(status, ShouldEqual, http.StatusBadGateway)
				So(body["code"], ShouldEqual, "upstream_transport")
			})
		})
	})
}
