package e2e

import (
	"net/http"
	"testing"
)

func TestHealth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/health", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", body["status"])
	}
}

func TestCreateJob_NoToken(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/jobs/",
		`{"sourceContent": "please build a landing page about our product launch"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestCreateJob_ValidationFailure(t *testing.T) {
	ta := setupApp(t)

	resp, err := ta.doAuthRequest(t, http.MethodPost, "/api/jobs/", `{"sourceContent": "too short"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)

	body := parseJSON(t, resp)
	errObj, ok := body["error"].(map[string]interface{})
	if !ok || errObj["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %v", body)
	}
}

func TestCreateJob_ReturnsDraft(t *testing.T) {
	ta := setupApp(t)
	jobID := ta.createJob(t)

	resp, err := ta.doAuthRequest(t, http.MethodGet, "/api/jobs/"+jobID, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["status"] != "draft" {
		t.Errorf("expected draft, got %v", body["status"])
	}
}

func TestGenerate_FullPipeline(t *testing.T) {
	ta := setupApp(t)
	jobID := ta.createJob(t)

	resp, err := ta.doAuthRequest(t, http.MethodPost, "/api/jobs/"+jobID+"/generate", "")
	if err != nil {
		t.Fatalf("generate request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	// The test wiring runs the pipeline synchronously, so by now the mock
	// stages have finished and the quality gate has passed.
	resp, err = ta.doAuthRequest(t, http.MethodGet, "/api/jobs/"+jobID, "")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	body := parseJSON(t, resp)
	if body["status"] != "ready_for_review" {
		t.Fatalf("expected ready_for_review, got %v", body["status"])
	}
	if _, ok := body["transitions"]; !ok {
		t.Error("expected the transition audit trail in the response")
	}

	resp, err = ta.doAuthRequest(t, http.MethodGet, "/api/jobs/"+jobID+"/artifact", "")
	if err != nil {
		t.Fatalf("artifact request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body = parseJSON(t, resp)
	if body["passed"] != true {
		t.Errorf("expected a passed run, got %v", body)
	}
	artifact, _ := body["artifact"].(string)
	if artifact == "" {
		t.Error("expected a rendered artifact")
	}
}

func TestGenerate_SecondStartConflicts(t *testing.T) {
	ta := setupApp(t)
	jobID := ta.createJob(t)

	resp, err := ta.doAuthRequest(t, http.MethodPost, "/api/jobs/"+jobID+"/generate", "")
	if err != nil {
		t.Fatalf("generate request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	resp, err = ta.doAuthRequest(t, http.MethodPost, "/api/jobs/"+jobID+"/generate", "")
	if err != nil {
		t.Fatalf("second generate request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusConflict)

	body := parseJSON(t, resp)
	errObj, ok := body["error"].(map[string]interface{})
	if !ok || errObj["code"] != "CONFLICT" {
		t.Errorf("expected CONFLICT, got %v", body)
	}
}

func TestGenerate_UnknownJob(t *testing.T) {
	ta := setupApp(t)

	resp, err := ta.doAuthRequest(t, http.MethodPost, "/api/jobs/no-such-job/generate", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestArtifact_BeforeAnyRun(t *testing.T) {
	ta := setupApp(t)
	jobID := ta.createJob(t)

	resp, err := ta.doAuthRequest(t, http.MethodGet, "/api/jobs/"+jobID+"/artifact", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusConflict)
}

func TestReview_RequiresBossRole(t *testing.T) {
	ta := setupApp(t)
	jobID := ta.createJob(t)

	resp, err := ta.doAuthRequest(t, http.MethodPost, "/api/jobs/"+jobID+"/review", `{"decision": "approve"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusForbidden)
}

func TestReview_ApproveAfterGeneration(t *testing.T) {
	ta := setupApp(t)
	jobID := ta.createJob(t)

	if _, err := ta.doAuthRequest(t, http.MethodPost, "/api/jobs/"+jobID+"/generate", ""); err != nil {
		t.Fatalf("generate request failed: %v", err)
	}

	resp, err := ta.doBossRequest(t, http.MethodPost, "/api/jobs/"+jobID+"/review",
		`{"decision": "approve", "note": "looks good"}`)
	if err != nil {
		t.Fatalf("review request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["status"] != "approved" {
		t.Errorf("expected approved, got %v", body["status"])
	}
}

func TestReview_InvalidDecision(t *testing.T) {
	ta := setupApp(t)
	jobID := ta.createJob(t)

	resp, err := ta.doBossRequest(t, http.MethodPost, "/api/jobs/"+jobID+"/review", `{"decision": "maybe"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestRevision_RoundTrip(t *testing.T) {
	ta := setupApp(t)
	jobID := ta.createJob(t)

	if _, err := ta.doAuthRequest(t, http.MethodPost, "/api/jobs/"+jobID+"/generate", ""); err != nil {
		t.Fatalf("generate request failed: %v", err)
	}

	resp, err := ta.doBossRequest(t, http.MethodPost, "/api/jobs/"+jobID+"/revision",
		`{"instructions": "make the headline punchier and shorten the intro"}`)
	if err != nil {
		t.Fatalf("revision request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	// Revision also runs synchronously here; the job lands back in review.
	resp, err = ta.doAuthRequest(t, http.MethodGet, "/api/jobs/"+jobID, "")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	body := parseJSON(t, resp)
	if body["status"] != "ready_for_review" {
		t.Errorf("expected ready_for_review, got %v", body["status"])
	}
	if body["revisionCount"] != float64(0) {
		t.Errorf("revisionCount = %v, want 0 for a human revision", body["revisionCount"])
	}
}

func TestRevision_FromDraftConflicts(t *testing.T) {
	ta := setupApp(t)
	jobID := ta.createJob(t)

	resp, err := ta.doBossRequest(t, http.MethodPost, "/api/jobs/"+jobID+"/revision",
		`{"instructions": "tighten the copy"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusConflict)
}

func TestStatus_UnknownJob(t *testing.T) {
	ta := setupApp(t)

	resp, err := ta.doAuthRequest(t, http.MethodGet, "/api/jobs/no-such-job", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}
