package support

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/plantex/internal/classifier"
	"github.com/MeKo-Tech/plantex/internal/models"
	"github.com/MeKo-Tech/plantex/internal/server"
	"github.com/cucumber/godog"
	"github.com/gorilla/websocket"
)

// startServer builds the API on an httptest server backed by the scenario's model.
func (testCtx *TestContext) startServer(cfg server.Config) error {
	if testCtx.HTTPServer != nil {
		return errors.New("server already running")
	}

	pool, err := classifier.LoadPool(2,
		filepath.Join(testCtx.ModelsDir, models.DefaultModelFile),
		filepath.Join(testCtx.ModelsDir, models.DefaultLabelsFile),
		classifier.DefaultConfig(), testCtx.Opener())
	if err != nil {
		return fmt.Errorf("failed to load classifier: %w", err)
	}

	if cfg.MaxUploadMB == 0 {
		cfg.MaxUploadMB = 5
	}
	if cfg.TimeoutSec == 0 {
		cfg.TimeoutSec = 10
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	cfg.ModelsDir = testCtx.ModelsDir
	cfg.Version = "integration"

	api, err := server.NewServer(cfg, pool)
	if err != nil {
		_ = pool.Close()
		return err
	}
	mux := http.NewServeMux()
	api.SetupRoutes(mux)

	testCtx.APIServer = api
	testCtx.HTTPServer = httptest.NewServer(mux)
	return nil
}

// theClassificationServerIsRunning starts a server with default settings.
func (testCtx *TestContext) theClassificationServerIsRunning() error {
	return testCtx.startServer(server.Config{})
}

func (testCtx *TestContext) theServerIsRunningWithRateLimit(perMinute int) error {
	return testCtx.startServer(server.Config{
		RateLimit: server.RateLimitConfig{Enabled: true, RequestsPerMinute: perMinute},
	})
}

func (testCtx *TestContext) theServerIsRunningWithUploadLimit(mb int) error {
	return testCtx.startServer(server.Config{MaxUploadMB: int64(mb)})
}

func (testCtx *TestContext) serverURL() (string, error) {
	if testCtx.HTTPServer == nil {
		return "", errors.New("server is not running")
	}
	return testCtx.HTTPServer.URL, nil
}

// recordResponse stores status, headers and body of resp.
func (testCtx *TestContext) recordResponse(resp *http.Response) error {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing response body: %v\n", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = map[string]string{}
	for name := range resp.Header {
		testCtx.LastHTTPHeaders[name] = resp.Header.Get(name)
	}
	return nil
}

// iSendAGETRequestTo performs a GET against the running server.
func (testCtx *TestContext) iSendAGETRequestTo(path string) error {
	base, err := testCtx.serverURL()
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(base + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return testCtx.recordResponse(resp)
}

// iUploadTo posts an image as multipart field "image" with optional form fields.
func (testCtx *TestContext) iUploadTo(name, path string) error {
	return testCtx.upload(name, path, nil)
}

func (testCtx *TestContext) iUploadToWithFields(name, path string, table *godog.Table) error {
	fields := map[string]string{}
	for _, row := range table.Rows {
		if len(row.Cells) != 2 {
			return errors.New("field table needs two columns")
		}
		fields[row.Cells[0].Value] = row.Cells[1].Value
	}
	return testCtx.upload(name, path, fields)
}

func (testCtx *TestContext) upload(name, path string, fields map[string]string) error {
	base, err := testCtx.serverURL()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(testCtx.Path(name))
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	fw, err := mw.CreateFormFile("image", filepath.Base(name))
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, base+path, &body) //nolint:noctx // test client
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	return testCtx.recordResponse(resp)
}

// theResponseStatusShouldBe verifies the last HTTP status code.
func (testCtx *TestContext) theResponseStatusShouldBe(code int) error {
	if testCtx.LastHTTPStatusCode != code {
		return fmt.Errorf("expected status %d, got %d\nBody: %s", code, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain '%s'\nBody: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseJSONFieldShouldBe(path, expected string) error {
	return jsonFieldEquals(testCtx.LastHTTPResponse, path, expected)
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, expected string) error {
	got, ok := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]
	if !ok {
		return fmt.Errorf("response header %s missing", name)
	}
	if got != expected {
		return fmt.Errorf("header %s = %q, want %q", name, got, expected)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBeSet(name string) error {
	if testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)] == "" {
		return fmt.Errorf("response header %s missing", name)
	}
	return nil
}

// iOpenAWebSocketConnection dials the streaming endpoint.
func (testCtx *TestContext) iOpenAWebSocketConnection() error {
	base, err := testCtx.serverURL()
	if err != nil {
		return err
	}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(base, "http")+"/ws/classify", nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	testCtx.WSConn = conn
	return nil
}

// iSendOverTheWebSocket sends one classification request and collects
// replies until a terminal message arrives.
func (testCtx *TestContext) iSendOverTheWebSocket(name string, topK int) error {
	if testCtx.WSConn == nil {
		return errors.New("websocket not connected")
	}
	data, err := os.ReadFile(testCtx.Path(name))
	if err != nil {
		return err
	}
	req := server.WebSocketClassifyRequest{Image: data, TopK: topK, RequestID: "ws-" + filepath.Base(name)}
	if err := testCtx.WSConn.WriteJSON(req); err != nil {
		return err
	}

	testCtx.LastWSMessages = nil
	_ = testCtx.WSConn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var msg map[string]any
		if err := testCtx.WSConn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("websocket read: %w", err)
		}
		testCtx.LastWSMessages = append(testCtx.LastWSMessages, msg)
		if status, _ := msg["status"].(string); status != "processing" {
			return nil
		}
	}
}

// theWebSocketStatusesShouldBe checks the sequence of reply statuses.
func (testCtx *TestContext) theWebSocketStatusesShouldBe(statuses string) error {
	var got []string
	for _, m := range testCtx.LastWSMessages {
		s, _ := m["status"].(string)
		got = append(got, s)
	}
	if strings.Join(got, ",") != strings.Join(splitList(statuses), ",") {
		return fmt.Errorf("websocket statuses %v, want %s", got, statuses)
	}
	return nil
}

func (testCtx *TestContext) theWebSocketFieldShouldBe(path, expected string) error {
	if len(testCtx.LastWSMessages) == 0 {
		return errors.New("no websocket messages received")
	}
	last, err := json.Marshal(testCtx.LastWSMessages[len(testCtx.LastWSMessages)-1])
	if err != nil {
		return err
	}
	return jsonFieldEquals(string(last), path, expected)
}

// RegisterServerSteps registers all server-related step definitions.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the classification server is running$`, testCtx.theClassificationServerIsRunning)
	sc.Step(`^the classification server is running with a limit of (\d+) requests per minute$`,
		testCtx.theServerIsRunningWithRateLimit)
	sc.Step(`^the classification server is running with an upload limit of (\d+) MB$`,
		testCtx.theServerIsRunningWithUploadLimit)

	sc.Step(`^I send a GET request to "([^"]*)"$`, testCtx.iSendAGETRequestTo)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)"$`, testCtx.iUploadTo)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)" with fields:$`, testCtx.iUploadToWithFields)

	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseJSONFieldShouldBe)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^the response header "([^"]*)" should be set$`, testCtx.theResponseHeaderShouldBeSet)

	sc.Step(`^I open a WebSocket connection$`, testCtx.iOpenAWebSocketConnection)
	sc.Step(`^I send "([^"]*)" over the WebSocket with top_k (\d+)$`, testCtx.iSendOverTheWebSocket)
	sc.Step(`^the WebSocket statuses should be "([^"]*)"$`, testCtx.theWebSocketStatusesShouldBe)
	sc.Step(`^the WebSocket field "([^"]*)" should be "([^"]*)"$`, testCtx.theWebSocketFieldShouldBe)
}
