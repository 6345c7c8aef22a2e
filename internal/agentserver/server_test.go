package agentserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fotad-io/fotad/internal/agent"
	"github.com/fotad-io/fotad/pkg/log"
)

type fakeAgent struct {
	status      agent.Status
	checkResult bool
	rollbackErr error
}

func (f *fakeAgent) Status() agent.Status { return f.status }
func (f *fakeAgent) ForceCheck() bool     { return f.checkResult }
func (f *fakeAgent) ForceRollback() (agent.Status, error) {
	if f.rollbackErr != nil {
		return agent.Status{}, f.rollbackErr
	}
	return agent.Status{ActiveSlot: "B"}, nil
}

func newTestRouter(a Agent) http.Handler {
	return newRouter(&handlers{agent: a, logger: log.NewNopLogger()})
}

func TestStatusEndpoint(t *testing.T) {
	fa := &fakeAgent{status: agent.Status{
		State:            agent.StateIdle,
		ActiveSlot:       "A",
		StandbySlot:      "B",
		ConfirmedVersion: "1.0.0",
	}}
	srv := httptest.NewServer(newTestRouter(fa))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got agent.Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got != fa.status {
		t.Fatalf("got %+v, want %+v", got, fa.status)
	}
}

func TestStatusRejectsPost(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(&fakeAgent{}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/status", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestCheckEndpoint(t *testing.T) {
	cases := []struct {
		name   string
		queued bool
	}{
		{name: "accepted", queued: true},
		{name: "already pending", queued: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(newTestRouter(&fakeAgent{checkResult: tc.queued}))
			defer srv.Close()

			resp, err := http.Post(srv.URL+"/api/v1/check", "application/json", nil)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusAccepted {
				t.Fatalf("status = %d, want 202", resp.StatusCode)
			}

			var got checkResponse
			if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
			if got.Queued != tc.queued {
				t.Fatalf("queued = %v, want %v", got.Queued, tc.queued)
			}
		})
	}
}

func TestRollbackEndpoint(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(&fakeAgent{}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/rollback", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got rollbackResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ActiveSlot != "B" {
		t.Fatalf("active slot = %q, want B", got.ActiveSlot)
	}
}

func TestRollbackEndpointError(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(&fakeAgent{rollbackErr: errors.New("store corrupt")}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/rollback", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}
