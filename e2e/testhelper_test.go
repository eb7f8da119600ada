package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/gerrot/api/internal/auth"
	"github.com/gerrot/api/internal/config"
	"github.com/gerrot/api/internal/document"
	"github.com/gerrot/api/internal/handler"
	"github.com/gerrot/api/internal/middleware"
	"github.com/gerrot/api/internal/model"
	"github.com/gerrot/api/internal/queue"
	"github.com/gerrot/api/internal/repository"
	"github.com/gerrot/api/internal/service"
	"github.com/gerrot/api/internal/storage"
	ws "github.com/gerrot/api/internal/websocket"
)

const (
	testJWTSecret = "test-secret-for-e2e"
	testUserID    = "test-user-123"

	// Nothing listens here, so every broker call fails fast.
	deadBrokerAddr = "127.0.0.1:1"

	testQueue = "pdf-generation-e2e"
	testDB    = 15
)

const testScript = "[0s - 5s]:\nNARRATION: Morning light over the city.\n\n" +
	"[5s - 20s]:\nNARRATION: Every great day starts with a great cup.\n"

// testApp holds all components needed for testing
type testApp struct {
	app       *fiber.App
	store     *repository.Memory
	artifacts *storage.ArtifactStore
	queue     *queue.Client
	pipeline  *service.Pipeline
}

// setupApp builds the same route table as cmd/server against a broker at
// redisAddr. With deadBrokerAddr every render runs in process.
func setupApp(t *testing.T, redisAddr string) *testApp {
	t.Helper()
	log := zerolog.Nop()

	store := repository.NewMemory()
	store.PutProject(model.Project{
		ID: "p1", Title: "Campanha Verão", ScriptType: "social_media",
		ClientID: "c1", OwnerID: testUserID, OwnerName: "Ana",
	})
	store.PutVersion(model.ScriptVersion{ID: "v1", ProjectID: "p1", VersionNumber: 2, Content: testScript})
	store.PutVersion(model.ScriptVersion{ID: "empty", ProjectID: "p1", VersionNumber: 1, Content: "   "})
	store.PutClient(model.Client{ID: "c1", Name: "Acme Coffee"})

	fsys, err := storage.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("localfs: %v", err)
	}
	artifacts := storage.NewArtifactStore(fsys, "/pdfs")

	renderer := document.NewRenderer(nil, document.Options{MinVisibleChars: 10}, log)
	pipeline := service.NewPipeline(store, renderer, artifacts, service.PipelineOptions{MaxContentBytes: 1 << 20}, log)

	queueClient := queue.NewClient(config.RedisConfig{Addr: redisAddr, DB: testDB}, queue.Options{
		Queue:          testQueue,
		MaxAttempts:    3,
		ProbeTimeout:   300 * time.Millisecond,
		EnqueueTimeout: time.Second,
		Retention:      time.Minute,
	}, log)
	t.Cleanup(func() { queueClient.Close() })

	degraded := service.NewDegradedExecutor(pipeline, service.DegradedOptions{
		Timeout:     10 * time.Second,
		Concurrency: 2,
	}, log)
	renderService := service.NewRenderService(queueClient, degraded, log)
	authenticator := auth.NewAuthenticator(nil, testJWTSecret)

	app := fiber.New(fiber.Config{ErrorHandler: handler.ErrorHandler})
	handler.Register(app, handler.Routes{
		Auth:         middleware.Authenticate(authenticator),
		RateLimiter:  middleware.NewRateLimiter(queueClient.Redis(), log),
		RenderLimit:  10000,
		Render:       handler.NewRenderHandler(renderService, validator.New(), log),
		Artifacts:    handler.NewArtifactHandler(artifacts),
		PublicPrefix: artifacts.PublicPrefix(),
		Health:       handler.NewHealthHandler(queueClient, artifacts.Provider(), authenticator.Configured()),
		AuthVerify:   handler.NewAuthHandler(authenticator),
		Hub:          ws.NewHub(log),
	})

	return &testApp{app: app, store: store, artifacts: artifacts, queue: queueClient, pipeline: pipeline}
}

// liveRedisAddr returns a reachable broker address or skips the test.
func liveRedisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	q := queue.NewClient(config.RedisConfig{Addr: addr, DB: testDB}, queue.Options{ProbeTimeout: 300 * time.Millisecond}, zerolog.Nop())
	defer q.Close()
	if !q.Probe(context.Background()) {
		t.Skipf("redis not available at %s", addr)
	}
	return addr
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	signed, err := auth.GenerateLegacyToken(testJWTSecret, testUserID, "test@example.com", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
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

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
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

// errorCode extracts error.code from a JSON error response.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %v", result)
	}
	code, _ := errObj["code"].(string)
	return code
}
