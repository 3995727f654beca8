package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pageforge/api/internal/model"
	"github.com/pageforge/api/internal/registry"
)

func newRunningHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(registry.NewMemoryRegistry())
	go hub.Run()
	return hub
}

func subscribe(t *testing.T, hub *Hub, jobID string) *Client {
	t.Helper()
	client := &Client{JobID: jobID, Send: make(chan []byte, 16)}
	hub.Register(client)
	return client
}

func recv(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg, ok := <-c.Send:
		if !ok {
			t.Fatal("send channel closed while expecting a message")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a message")
	}
	return nil
}

func expectClosed(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg, ok := <-c.Send:
		if ok {
			t.Fatalf("expected closed channel, got message %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the channel to close")
	}
}

func TestHub_BroadcastReachesOnlyJobSubscribers(t *testing.T) {
	hub := newRunningHub(t)
	a := subscribe(t, hub, "job-a")
	b := subscribe(t, hub, "job-b")

	hub.Progress("job-a", model.ProgressEvent{Stage: model.StageNormalize, Message: "Normalizing submission..."})

	var msg model.WSProgressMessage
	if err := json.Unmarshal(recv(t, a), &msg); err != nil {
		t.Fatalf("bad progress message: %v", err)
	}
	if msg.Type != model.WSMessageTypeProgress || msg.JobID != "job-a" || msg.Stage != model.StageNormalize {
		t.Errorf("unexpected message: %+v", msg)
	}

	select {
	case leaked := <-b.Send:
		t.Fatalf("subscriber of another job received %s", leaked)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_CompleteClosesEveryStreamOfTheJob(t *testing.T) {
	hub := newRunningHub(t)
	first := subscribe(t, hub, "job-1")
	second := subscribe(t, hub, "job-1")

	hub.Complete("job-1", &model.PipelineRun{Score: 91, RevisionCount: 2})

	for _, c := range []*Client{first, second} {
		var msg model.WSCompleteMessage
		if err := json.Unmarshal(recv(t, c), &msg); err != nil {
			t.Fatalf("bad complete message: %v", err)
		}
		if msg.Type != model.WSMessageTypeComplete || msg.Score != 91 || msg.RevisionCount != 2 {
			t.Errorf("unexpected message: %+v", msg)
		}
		expectClosed(t, c)
	}
}

func TestHub_FailedCarriesScoreOnlyWhenScored(t *testing.T) {
	hub := newRunningHub(t)

	// A run that never produced a scorecard has no score to report.
	unscored := subscribe(t, hub, "job-1")
	hub.Failed("job-1", &model.PipelineRun{Error: "normalize stage upstream_unavailable"})

	var msg model.WSFailedMessage
	if err := json.Unmarshal(recv(t, unscored), &msg); err != nil {
		t.Fatalf("bad failed message: %v", err)
	}
	if msg.Score != nil {
		t.Errorf("score = %v, want nil for an unscored run", *msg.Score)
	}
	if msg.Error == "" {
		t.Error("expected the failure reason")
	}
	expectClosed(t, unscored)

	// A gate-exhausted run reports the last score it saw.
	scored := subscribe(t, hub, "job-2")
	hub.Failed("job-2", &model.PipelineRun{
		Error: "quality gate not passed after 3 attempts",
		Score: 58, RevisionCount: 3,
		Attempts: []model.StageAttempt{{Stage: model.StageValidate, Attempt: 3, Score: 58}},
	})

	if err := json.Unmarshal(recv(t, scored), &msg); err != nil {
		t.Fatalf("bad failed message: %v", err)
	}
	if msg.Score == nil || *msg.Score != 58 || msg.RevisionCount != 3 {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestHub_SlowSubscriberIsDropped(t *testing.T) {
	hub := newRunningHub(t)
	slow := &Client{JobID: "job-1", Send: make(chan []byte)}
	hub.Register(slow)
	sentinel := subscribe(t, hub, "job-1")

	// Nobody reads slow.Send during the broadcast (this goroutine is blocked
	// on the sentinel), so the hub's non-blocking send must drop the client.
	hub.Progress("job-1", model.ProgressEvent{Stage: model.StageRender, Message: "Rendering artifact..."})
	recv(t, sentinel)

	// Draining a second broadcast through the sentinel proves the first one
	// was fully processed, so the drop has happened by now.
	hub.Progress("job-1", model.ProgressEvent{Stage: model.StageRender, Message: "Rendering artifact..."})
	recv(t, sentinel)

	expectClosed(t, slow)
}

func TestHub_UnregisterClosesStream(t *testing.T) {
	hub := newRunningHub(t)
	client := subscribe(t, hub, "job-1")

	hub.Unregister(client)
	expectClosed(t, client)

	// Broadcasting afterwards must not panic on the removed client.
	hub.Progress("job-1", model.ProgressEvent{Stage: model.StageRender, Message: "Rendering artifact..."})
}

func TestSyntheticTerminal_Approved(t *testing.T) {
	data, _ := json.Marshal(&model.PipelineRun{Passed: true, Score: 93})
	job := &model.Job{
		ID: "job-1", Status: model.JobStatusApproved,
		PipelineResult: data, RevisionCount: 1,
	}

	msg, ok := syntheticTerminal(job).(model.WSCompleteMessage)
	if !ok {
		t.Fatalf("expected a complete message, got %T", syntheticTerminal(job))
	}
	if msg.Score != 93 || msg.RevisionCount != 1 {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestSyntheticTerminal_FactoryFailed(t *testing.T) {
	reason := "processing timed out"
	data, _ := json.Marshal(&model.PipelineRun{
		Score:    44,
		Attempts: []model.StageAttempt{{Stage: model.StageValidate, Attempt: 3, Score: 44}},
	})
	job := &model.Job{
		ID: "job-1", Status: model.JobStatusFactoryFailed,
		PipelineResult: data, FailureReason: &reason, RevisionCount: 3,
	}

	msg, ok := syntheticTerminal(job).(model.WSFailedMessage)
	if !ok {
		t.Fatalf("expected a failed message, got %T", syntheticTerminal(job))
	}
	if msg.Error != reason {
		t.Errorf("error = %q, want %q", msg.Error, reason)
	}
	if msg.Score == nil || *msg.Score != 44 {
		t.Errorf("score = %v, want 44", msg.Score)
	}
}

// Compile-time check that the hub satisfies the orchestrator's sink shape.
var _ interface {
	Progress(jobID string, ev model.ProgressEvent)
	Complete(jobID string, run *model.PipelineRun)
	Failed(jobID string, run *model.PipelineRun)
} = (*Hub)(nil)
