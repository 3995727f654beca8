package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"github.com/pageforge/api/internal/client"
	"github.com/pageforge/api/internal/config"
	"github.com/pageforge/api/internal/factory"
	"github.com/pageforge/api/internal/handler"
	"github.com/pageforge/api/internal/middleware"
	"github.com/pageforge/api/internal/model"
	"github.com/pageforge/api/internal/registry"
	"github.com/pageforge/api/internal/service"
	"github.com/pageforge/api/internal/worker"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app  *fiber.App
	reg  registry.Registry
	auth *middleware.AuthMiddleware
}

// inlineEnqueuer runs factory tasks synchronously instead of through Redis,
// so a generate request returns with the pipeline already finished.
type inlineEnqueuer struct {
	worker *worker.GenerationWorker
}

func (e *inlineEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	switch task.Type() {
	case service.TaskTypeGenerate:
		_ = e.worker.ProcessGenerate(context.Background(), task)
	case service.TaskTypeRevision:
		_ = e.worker.ProcessRevision(context.Background(), task)
	}
	return &asynq.TaskInfo{}, nil
}

type nopSink struct{}

func (nopSink) Progress(string, model.ProgressEvent) {}
func (nopSink) Complete(string, *model.PipelineRun)  {}
func (nopSink) Failed(string, *model.PipelineRun)    {}

// setupApp creates a Fiber app identical to main.go but fully in-memory:
// memory registry instead of Redis, synchronous task execution instead of
// asynq, and an unconfigured LLM client so stages use mock responses. The
// rate limiter needs Redis and is left out of the test wiring.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	validate := validator.New()

	llmClient := client.NewLLMClient(&config.LLMConfig{}) // no API key → mock stages

	reg := registry.NewMemoryRegistry()
	stateMachine := factory.NewStateMachine(reg)

	enqueuer := &inlineEnqueuer{}
	generationService := service.NewGenerationService(reg, stateMachine, enqueuer)

	invoker := factory.NewInvoker(llmClient, 5*time.Second)
	orchestrator := factory.NewOrchestrator(invoker, nopSink{}, factory.GateConfig{})
	enqueuer.worker = worker.NewGenerationWorker(reg, stateMachine, orchestrator)

	jobHandler := handler.NewJobHandler(generationService, validate)
	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"llm":   llmClient.IsConfigured(),
				"redis": false,
			},
		})
	})

	api := app.Group("/api", authMiddleware.Authenticate())

	jobs := api.Group("/jobs")
	jobs.Post("/", jobHandler.Create)
	jobs.Post("/:jobId/generate", jobHandler.Generate)
	jobs.Get("/:jobId", jobHandler.Status)
	jobs.Get("/:jobId/artifact", jobHandler.Artifact)
	jobs.Post("/:jobId/review", authMiddleware.RequireBoss(), jobHandler.Review)
	jobs.Post("/:jobId/revision", authMiddleware.RequireBoss(), jobHandler.Revision)

	return &testApp{app: app, reg: reg, auth: authMiddleware}
}

// generateToken creates an HMAC JWT for test requests.
func (ta *testApp) generateToken(t *testing.T, role string) string {
	t.Helper()
	token, err := ta.auth.GenerateToken("test-user-123", "test@example.com", role)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request with a member token.
func (ta *testApp) doAuthRequest(t *testing.T, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(ta.app, method, path, body, map[string]string{
		"Authorization": "Bearer " + ta.generateToken(t, "member"),
	})
}

// doBossRequest performs a request with a boss token.
func (ta *testApp) doBossRequest(t *testing.T, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(ta.app, method, path, body, map[string]string{
		"Authorization": "Bearer " + ta.generateToken(t, "boss"),
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// createJob submits a valid draft job and returns its id.
func (ta *testApp) createJob(t *testing.T) string {
	t.Helper()
	resp, err := ta.doAuthRequest(t, http.MethodPost, "/api/jobs/",
		`{"title": "Landing page", "sourceContent": "please build a landing page about our product launch"}`)
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	body := parseJSON(t, resp)
	jobID, _ := body["jobId"].(string)
	if jobID == "" {
		t.Fatalf("no jobId in response: %v", body)
	}
	return jobID
}
