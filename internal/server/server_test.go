package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"zeke-gateway/internal/config"
	"zeke-gateway/internal/metrics"
	"zeke-gateway/internal/provider"
	providerfactory "zeke-gateway/internal/provider/factory"
	"zeke-gateway/internal/router"
	"zeke-gateway/internal/tasks"
)

// deadURL returns an address that refuses connections.
func deadURL(t *testing.T) string {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := upstream.URL
	upstream.Close()
	return url
}

// forbiddenUpstream fails the test when contacted.
func forbiddenUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("upstream %s must not be contacted", r.Host)
	}))
	t.Cleanup(upstream.Close)
	return upstream
}

func newTestServer(t *testing.T, mutate func(*config.Config)) http.Handler {
	t.Helper()

	cfg := config.Default()
	cfg.Providers.Local.BaseURL = deadURL(t)
	cfg.Providers.OpenAI.BaseURL = forbiddenUpstream(t).URL
	cfg.Providers.Claude.BaseURL = forbiddenUpstream(t).URL
	cfg.Providers.Google.BaseURL = forbiddenUpstream(t).URL
	cfg.Providers.Copilot.BaseURL = forbiddenUpstream(t).URL
	if mutate != nil {
		mutate(&cfg)
	}

	registry := provider.NewRegistry()
	if err := providerfactory.RegisterConfiguredProviders(cfg, registry); err != nil {
		t.Fatalf("RegisterConfiguredProviders() error = %v", err)
	}

	m := metrics.New()
	srv, err := New(cfg, router.New(registry, m), m)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv.Handler()
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	handler := newTestServer(t, nil)

	rec := do(t, handler, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got["status"] != "healthy" {
		t.Errorf("status field = %v, want healthy", got["status"])
	}
	if got["service"] != "zeke-gateway" {
		t.Errorf("service field = %v", got["service"])
	}
	// Advertised flag, not a hardware probe.
	if got["gpu_enabled"] != true {
		t.Errorf("gpu_enabled = %v, want true", got["gpu_enabled"])
	}
}

func TestOptionsAnyPath(t *testing.T) {
	handler := newTestServer(t, nil)

	for _, path := range []string{"/v1/chat/completions", "/does/not/exist", "/health"} {
		rec := do(t, handler, http.MethodOptions, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("OPTIONS %s status = %d, want 200", path, rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("OPTIONS %s body = %q, want empty", path, rec.Body.String())
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("OPTIONS %s Access-Control-Allow-Origin = %q, want *", path, got)
		}
	}
}

func TestUnmatchedPath(t *testing.T) {
	handler := newTestServer(t, nil)

	rec := do(t, handler, http.MethodGet, "/does/not/exist", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var body struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != "not_found" {
		t.Errorf("error code = %q, want not_found", body.Error.Code)
	}
}

func TestWrongMethodOnMatchedPath(t *testing.T) {
	handler := newTestServer(t, nil)

	rec := do(t, handler, http.MethodGet, "/v1/chat/completions", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /v1/chat/completions status = %d, want 405", rec.Code)
	}

	rec = do(t, handler, http.MethodGet, "/v1/zeke/code/analyze", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /v1/zeke/code/analyze status = %d, want 405", rec.Code)
	}
}

func TestChatLocalFallback(t *testing.T) {
	handler := newTestServer(t, nil)

	rec := do(t, handler, http.MethodPost, "/v1/chat/completions",
		`{"model":"llama2","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Model != "llama2" {
		t.Errorf("model = %q, want llama2", resp.Model)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("choices length = %d, want 1", len(resp.Choices))
	}
	if !strings.Contains(resp.Choices[0].Message.Content, "not reachable") {
		t.Errorf("content = %q, want the canned fallback", resp.Choices[0].Message.Content)
	}
	if resp.Usage.TotalTokens == 0 {
		t.Error("usage must be synthesized, never omitted")
	}
}

func TestChatMissingOpenAIKey(t *testing.T) {
	handler := newTestServer(t, nil)

	rec := do(t, handler, http.MethodPost, "/v1/chat/completions",
		`{"model":"gpt-4","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500, body: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Message != "OpenAI API key not configured" {
		t.Errorf("error message = %q", body.Error.Message)
	}
	if body.Error.Code != "configuration_error" {
		t.Errorf("error code = %q, want configuration_error", body.Error.Code)
	}
}

func TestChatClaudeSystemDropAndMaxTokens(t *testing.T) {
	var captured struct {
		Messages  []json.RawMessage `json:"messages"`
		MaxTokens int               `json:"max_tokens"`
	}
	claudeUpstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(`{"role":"assistant","content":[{"type":"text","text":"hello"}],"stop_reason":"end_turn"}`))
	}))
	defer claudeUpstream.Close()

	handler := newTestServer(t, func(cfg *config.Config) {
		cfg.Providers.Claude.BaseURL = claudeUpstream.URL
		cfg.Providers.Claude.APIKey = "sk-test"
	})

	rec := do(t, handler, http.MethodPost, "/v1/chat/completions",
		`{"model":"claude-3-opus","messages":[{"role":"system","content":"x"},{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	if len(captured.Messages) != 1 {
		t.Errorf("upstream messages length = %d, want 1 (system dropped)", len(captured.Messages))
	}
	if captured.MaxTokens != 4096 {
		t.Errorf("upstream max_tokens = %d, want 4096", captured.MaxTokens)
	}
}

func TestChatValidation(t *testing.T) {
	handler := newTestServer(t, nil)

	rec := do(t, handler, http.MethodPost, "/v1/chat/completions", `{"model":"llama2"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing messages status = %d, want 400", rec.Code)
	}

	rec = do(t, handler, http.MethodPost, "/v1/chat/completions", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty body status = %d, want 400", rec.Code)
	}

	rec = do(t, handler, http.MethodPost, "/v1/chat/completions", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec.Code)
	}
}

func TestModelsListing(t *testing.T) {
	handler := newTestServer(t, nil)

	rec := do(t, handler, http.MethodGet, "/v1/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Object string `json:"object"`
		Data   []struct {
			ID      string `json:"id"`
			Object  string `json:"object"`
			OwnedBy string `json:"owned_by"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Object != "list" {
		t.Errorf("object = %q, want list", body.Object)
	}
	if len(body.Data) == 0 {
		t.Fatal("model listing is empty")
	}
	owners := make(map[string]bool)
	for _, m := range body.Data {
		if m.Object != "model" {
			t.Errorf("model %s object = %q, want model", m.ID, m.Object)
		}
		owners[m.OwnedBy] = true
	}
	for _, owner := range []string{"local", "openai", "claude", "google", "copilot"} {
		if !owners[owner] {
			t.Errorf("listing missing models owned by %s", owner)
		}
	}
}

func TestCompletions(t *testing.T) {
	handler := newTestServer(t, nil)

	rec := do(t, handler, http.MethodPost, "/v1/completions", `{"model":"llama2"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing prompt status = %d, want 400", rec.Code)
	}

	rec = do(t, handler, http.MethodPost, "/v1/completions",
		`{"model":"llama2","prompt":"say hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Object  string `json:"object"`
		Model   string `json:"model"`
		Choices []struct {
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Object != "text_completion" {
		t.Errorf("object = %q, want text_completion", resp.Object)
	}
	if resp.Model != "llama2" {
		t.Errorf("model = %q, want llama2", resp.Model)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Text == "" {
		t.Errorf("choices = %+v, want one text choice", resp.Choices)
	}
}

func TestTaskEnvelopeSuccess(t *testing.T) {
	localUpstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"analysis done"},"done":true,"done_reason":"stop"}`))
	}))
	defer localUpstream.Close()

	handler := newTestServer(t, func(cfg *config.Config) {
		cfg.Providers.Local.BaseURL = localUpstream.URL
	})

	rec := do(t, handler, http.MethodPost, "/v1/zeke/code/analyze",
		`{"code":"func main() {}","language":"go"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var env tasks.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.Type != "analyze" {
		t.Errorf("type = %q, want analyze", env.Type)
	}
	if env.Content != "analysis done" {
		t.Errorf("content = %q", env.Content)
	}
	if env.Status != "success" {
		t.Errorf("status = %q, want success", env.Status)
	}
	if env.Timestamp == 0 {
		t.Error("timestamp must be set")
	}
}

func TestTaskEnvelopeError(t *testing.T) {
	handler := newTestServer(t, nil)

	// Resolves to OpenAI, which has no key; the failure rides inside the
	// envelope rather than failing the request.
	rec := do(t, handler, http.MethodPost, "/v1/zeke/code/explain",
		`{"code":"x = 1","model":"gpt-4"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}

	var env tasks.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.Type != "error" || env.Status != "error" {
		t.Errorf("envelope = %+v, want error shape", env)
	}
	if env.Message != "OpenAI API key not configured" {
		t.Errorf("message = %q", env.Message)
	}
}

func TestTaskProviderOverrideViaModel(t *testing.T) {
	handler := newTestServer(t, nil)

	// Default model resolves to Local; the dead local backend answers with
	// the canned fallback, which still makes a success envelope.
	rec := do(t, handler, http.MethodPost, "/v1/zeke/terminal/assist",
		`{"command":"list ports","shell":"bash"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var env tasks.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.Status != "success" {
		t.Errorf("status = %q, want success via local fallback", env.Status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := newTestServer(t, nil)

	// Generate one request first so counters exist.
	do(t, handler, http.MethodGet, "/health", "")

	rec := do(t, handler, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "zeke_gateway") {
		t.Error("metrics output missing gateway instruments")
	}
}

func TestCORSHeadersOnRegularResponses(t *testing.T) {
	handler := newTestServer(t, nil)

	rec := do(t, handler, http.MethodGet, "/health", "")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}
