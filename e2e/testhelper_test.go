package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/stemdeck/api/internal/auth"
	"github.com/stemdeck/api/internal/client"
	"github.com/stemdeck/api/internal/config"
	"github.com/stemdeck/api/internal/handler"
	"github.com/stemdeck/api/internal/middleware"
	"github.com/stemdeck/api/internal/service"
	"github.com/stemdeck/api/internal/store"
	"github.com/stemdeck/api/internal/testsupport"
	"github.com/stemdeck/api/internal/worker"
)

const (
	testUserID = "test-user-123"
	otherUser  = "other-user-456"
)

// testApp holds all components needed for testing
type testApp struct {
	app        *fiber.App
	cfg        *config.Config
	store      *store.Store
	dispatcher *worker.GoroutineDispatcher
}

// setupApp creates a Fiber app wired like serve.go, with stub tools, an
// in-process dispatcher and no Redis. Rate limiting is disabled.
func setupApp(t *testing.T, opts ...testsupport.ConfigOption) *testApp {
	t.Helper()
	return newTestApp(t, false, opts...)
}

// setupGatewayApp is setupApp with header-based gateway auth.
func setupGatewayApp(t *testing.T, opts ...testsupport.ConfigOption) *testApp {
	t.Helper()
	return newTestApp(t, true, opts...)
}

func newTestApp(t *testing.T, gateway bool, opts ...testsupport.ConfigOption) *testApp {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	st, err := store.Open(cfg.Storage)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	runner := client.NewProcessRunner(cfg.Tools.Timeout)
	separator := client.NewSeparator(runner, &cfg.Tools)
	conversionWorker := worker.NewConversionWorker(st,
		client.NewExtractor(runner, &cfg.Tools),
		separator,
		client.NewTranscoder(runner, &cfg.Tools),
		nil,
		cfg.Storage,
	)
	dispatcher := worker.NewGoroutineDispatcher(conversionWorker)
	t.Cleanup(dispatcher.Wait)

	validate := validator.New()

	authenticate := middleware.NewAuthMiddleware(nil, cfg.JWT.Secret).Authenticate()
	if gateway {
		authenticate = middleware.GatewayAuthMiddleware()
	}

	routes := &handler.Routes{
		Authenticate: authenticate,
		Limiter:      middleware.NewRateLimiter(nil),
		Limits:       cfg.RateLimit,
		Storage:      cfg.Storage,
		Convert:      handler.NewConvertHandler(service.NewConversionService(st, dispatcher), validate),
		Songs:        handler.NewSongHandler(service.NewLibraryService(st, nil, cfg.Storage), validate),
		Auth:         handler.NewAuthHandler(service.NewAuthService(st, &cfg.JWT), validate),
		Health:       handler.NewHealthHandler(nil, separator, config.DispatcherGoroutine, false, true),
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handler.ErrorHandler,
	})
	routes.Mount(app)

	return &testApp{app: app, cfg: cfg, store: st, dispatcher: dispatcher}
}

// generateToken creates a session token for userID.
func generateToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.IssueToken(testsupport.JWTSecret, userID, userID+"@example.com", time.Hour)
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

// doAuthRequest performs a request as the default test user.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequestAs(t, app, testUserID, method, path, body)
}

func doRequestAs(t *testing.T, app *fiber.App, userID, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t, userID),
	})
}

// mustAuthRequest fails the test on transport errors.
func mustAuthRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doAuthRequest(t, app, method, path, body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
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

// parseJSONArray parses response body into a slice of objects.
func parseJSONArray(t *testing.T, resp *http.Response) []map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result []map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON array: %v\nbody: %s", err, body)
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

// assertErrorCode checks the code inside the error envelope.
func assertErrorCode(t *testing.T, resp *http.Response, code string) {
	t.Helper()
	body := parseJSON(t, resp)
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected 'error' object, got %v", body)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %s, got %v", code, errObj["code"])
	}
}

// convertAndWait submits url with stems on or off and waits for the job to
// finish. It returns the job id.
func convertAndWait(t *testing.T, ta *testApp, enableStems bool) string {
	t.Helper()
	body := `{"url":"https://www.youtube.com/watch?v=abc","enableStems":false}`
	if enableStems {
		body = `{"url":"https://www.youtube.com/watch?v=abc","enableStems":true}`
	}
	resp := mustAuthRequest(t, ta.app, http.MethodPost, "/api/convert", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	id, _ := parseJSON(t, resp)["id"].(string)
	if id == "" {
		t.Fatal("expected job id in response")
	}
	ta.dispatcher.Wait()
	return id
}

// onlySong returns the id of the single song in the test user's library.
func onlySong(t *testing.T, ta *testApp) string {
	t.Helper()
	resp := mustAuthRequest(t, ta.app, http.MethodGet, "/api/songs", "")
	songs := parseJSONArray(t, resp)
	if len(songs) != 1 {
		t.Fatalf("expected 1 song, got %d", len(songs))
	}
	return songs[0]["id"].(string)
}
