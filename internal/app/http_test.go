package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"topictree/internal/auth"
	"topictree/internal/gitrepo"
	"topictree/internal/metrics"
	"topictree/internal/resolver"
	"topictree/internal/tagger"
	"topictree/internal/treestore"
)

type testEnv struct {
	store   *treestore.Store
	server  *HTTPServer
	metrics *metrics.Metrics
}

type failingPinger struct {
	*treestore.MemoryBackend
}

func (failingPinger) Ping(context.Context) error { return errors.New("backend down") }

func newTestEnv(t *testing.T, backend treestore.Backend, keys *auth.Keyring) testEnv {
	t.Helper()
	st := treestore.New(backend, treestore.Options{})
	res, err := resolver.New(resolver.LexicalScorer{}, nil, nil, resolver.DefaultThreshold)
	if err != nil {
		t.Fatalf("resolver.New() error = %v", err)
	}
	m := metrics.New()
	svc := New(Deps{
		Store:  st,
		Tagger: tagger.New(st, res, nil, nil, nil, m),
	})
	return testEnv{
		store:   st,
		metrics: m,
		server:  NewHTTPServer(svc, ServerOptions{Keys: keys, Metrics: m}),
	}
}

func (e testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return out
}

func createTree(t *testing.T, env testEnv, headers ...string) string {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/trees", nil, headers...)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create tree status = %d body=%s", rr.Code, rr.Body.String())
	}
	id, _ := decode(t, rr)["tree_key"].(string)
	if id == "" {
		t.Fatal("missing tree_key")
	}
	return id
}

func TestHealthAndReadyEndpoints(t *testing.T) {
	env := newTestEnv(t, treestore.NewMemoryBackend(), nil)

	rr := env.do(t, http.MethodGet, "/api/health", nil)
	if rr.Code != http.StatusOK || decode(t, rr)["ok"] != true {
		t.Fatalf("health = %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}

	rr = env.do(t, http.MethodGet, "/api/ready", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("ready = %d", rr.Code)
	}

	down := newTestEnv(t, failingPinger{treestore.NewMemoryBackend()}, nil)
	rr = down.do(t, http.MethodGet, "/api/ready", nil)
	if rr.Code != http.StatusServiceUnavailable || decode(t, rr)["status"] != "not_ready" {
		t.Fatalf("ready with failing backend = %d %s", rr.Code, rr.Body.String())
	}
}

func TestTagFlow(t *testing.T) {
	env := newTestEnv(t, treestore.NewMemoryBackend(), nil)
	id := createTree(t, env)

	rr := env.do(t, http.MethodPost, "/trees/"+id+"/tag", map[string]any{
		"comment":         "The football match was great",
		"mistral_api_key": "ignored",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("tag status = %d body=%s", rr.Code, rr.Body.String())
	}
	tagged := decode(t, rr)
	main, _ := tagged["main"].(string)
	if tagged["tree_key"] != id || main == "" {
		t.Fatalf("unexpected tag result: %v", tagged)
	}

	rr = env.do(t, http.MethodGet, "/trees/"+id+"/topics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("topics status = %d", rr.Code)
	}
	topics, _ := decode(t, rr)["main_topics"].([]any)
	if len(topics) != 1 || topics[0] != main {
		t.Fatalf("main_topics = %v, want [%s]", topics, main)
	}

	// a second comment sharing the topic's words reuses it
	rr = env.do(t, http.MethodPost, "/trees/"+id+"/tag", map[string]any{"comment": main + " again"})
	if rr.Code != http.StatusOK || decode(t, rr)["main"] != main {
		t.Fatalf("second tag = %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/trees/"+id+"/tag", map[string]any{"comment": "   "})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("blank comment status = %d", rr.Code)
	}
}

func TestInsertCommentAndGetTree(t *testing.T) {
	env := newTestEnv(t, treestore.NewMemoryBackend(), nil)
	id := createTree(t, env)

	rr := env.do(t, http.MethodPost, "/trees/"+id+"/comments", InsertCommentInput{
		Main:    "Sports",
		Paths:   [][]string{{"Football", "Goal"}},
		Comment: "What a goal",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("insert status = %d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/trees/"+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	var got struct {
		TreeKey string `json:"tree_key"`
		Tree    map[string]struct {
			Label    string         `json:"label"`
			Children map[string]any `json:"children"`
		} `json:"tree"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	if got.TreeKey != id || got.Tree["sports"].Label != "Sports" || got.Tree["sports"].Children["football"] == nil {
		t.Fatalf("unexpected tree: %s", rr.Body.String())
	}

	cases := []struct {
		name string
		body any
		code int
	}{
		{name: "missing main", body: InsertCommentInput{Comment: "x"}, code: http.StatusUnprocessableEntity},
		{name: "missing comment", body: InsertCommentInput{Main: "Sports"}, code: http.StatusUnprocessableEntity},
		{name: "degenerate label", body: InsertCommentInput{Main: "!!!", Comment: "x"}, code: http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rr := env.do(t, http.MethodPost, "/trees/"+id+"/comments", tc.body); rr.Code != tc.code {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tc.code, rr.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/trees/"+id+"/comments", strings.NewReader("{"))
	rr = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid json status = %d", rr.Code)
	}
}

func TestInsertCommentStoresTextVerbatim(t *testing.T) {
	env := newTestEnv(t, treestore.NewMemoryBackend(), nil)
	id := createTree(t, env)

	for _, comment := range []string{"  padded  ", "padded"} {
		rr := env.do(t, http.MethodPost, "/trees/"+id+"/comments", InsertCommentInput{
			Main:    "Sports",
			Paths:   [][]string{{"Football"}},
			Comment: comment,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("insert %q status = %d body=%s", comment, rr.Code, rr.Body.String())
		}
	}

	saved, err := env.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	leaf, ok := saved.Find("sports", "football")
	if !ok {
		t.Fatal("football node missing")
	}
	if len(leaf.Comments) != 2 || leaf.Comments[0] != "  padded  " || leaf.Comments[1] != "padded" {
		t.Fatalf("comments = %q", leaf.Comments)
	}
}

func TestUnknownTreeIsNotFound(t *testing.T) {
	env := newTestEnv(t, treestore.NewMemoryBackend(), nil)
	missing := "0123456789abcdef0123456789abcdef"

	for _, path := range []string{"/trees/" + missing, "/trees/" + missing + "/topics", "/trees/not-an-id"} {
		if rr := env.do(t, http.MethodGet, path, nil); rr.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d", path, rr.Code)
		}
	}
	rr := env.do(t, http.MethodPost, "/trees/"+missing+"/tag", map[string]any{"comment": "hello world"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("tag unknown tree status = %d", rr.Code)
	}
	if exists, _ := env.store.Exists(context.Background(), missing); exists {
		t.Fatal("tagging an unknown tree created it")
	}
	if rr := env.do(t, http.MethodGet, "/nowhere", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown route status = %d", rr.Code)
	}
}

func TestAPIKeyRoles(t *testing.T) {
	keys := auth.NewKeyring("writer-key", "", "reader-key")
	env := newTestEnv(t, treestore.NewMemoryBackend(), keys)

	if rr := env.do(t, http.MethodGet, "/trees", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("no key status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/trees", nil, auth.HeaderAPIKey, "wrong"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad key status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/trees", nil, auth.HeaderAPIKey, "reader-key"); rr.Code != http.StatusForbidden {
		t.Fatalf("reader create status = %d", rr.Code)
	}

	id := createTree(t, env, auth.HeaderAPIKey, "writer-key")
	if rr := env.do(t, http.MethodGet, "/trees/"+id, nil, auth.HeaderAPIKey, "reader-key"); rr.Code != http.StatusOK {
		t.Fatalf("reader get status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/admin/reindex", nil, auth.HeaderAPIKey, "reader-key"); rr.Code != http.StatusForbidden {
		t.Fatalf("reader reindex status = %d", rr.Code)
	}
	// health stays open
	if rr := env.do(t, http.MethodGet, "/api/health", nil); rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}
}

func TestHistoryDependsOnBackend(t *testing.T) {
	env := newTestEnv(t, treestore.NewMemoryBackend(), nil)
	id := createTree(t, env)
	if rr := env.do(t, http.MethodGet, "/trees/"+id+"/history", nil); rr.Code != http.StatusNotImplemented {
		t.Fatalf("memory history status = %d", rr.Code)
	}

	gitEnv := newTestEnv(t, gitrepo.New(t.TempDir()), nil)
	id = createTree(t, gitEnv)
	gitEnv.do(t, http.MethodPost, "/trees/"+id+"/comments", InsertCommentInput{Main: "Sports", Comment: "Nice"})

	rr := gitEnv.do(t, http.MethodGet, "/trees/"+id+"/history?limit=10", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("git history status = %d body=%s", rr.Code, rr.Body.String())
	}
	history, _ := decode(t, rr)["history"].([]any)
	if len(history) != 2 {
		t.Fatalf("history = %v", history)
	}

	first, _ := history[1].(map[string]any)
	rr = gitEnv.do(t, http.MethodGet, "/trees/"+id+"?revision="+first["hash"].(string), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("revision status = %d body=%s", rr.Code, rr.Body.String())
	}
	if tr, _ := decode(t, rr)["tree"].(map[string]any); len(tr) != 0 {
		t.Fatalf("first revision should be empty, got %v", tr)
	}

	if rr := gitEnv.do(t, http.MethodGet, "/trees/"+id+"/history?limit=x", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rr.Code)
	}
}

func TestExportAndSearch(t *testing.T) {
	env := newTestEnv(t, treestore.NewMemoryBackend(), nil)
	id := createTree(t, env)
	env.do(t, http.MethodPost, "/trees/"+id+"/comments", InsertCommentInput{
		Main: "Weather", Paths: [][]string{{"Rain"}}, Comment: "Umbrella weather today",
	})

	rr := env.do(t, http.MethodGet, "/trees/"+id+"/export?format=html", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("export content type = %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "Umbrella weather today") {
		t.Fatal("export missing comment")
	}
	if rr := env.do(t, http.MethodGet, "/trees/"+id+"/export?format=docx", nil); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("docx export status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/search?q=umbrella&treeId="+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("search status = %d", rr.Code)
	}
	if total := decode(t, rr)["total"]; total != float64(1) {
		t.Fatalf("search total = %v body=%s", total, rr.Body.String())
	}
	if rr := env.do(t, http.MethodGet, "/search", nil); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty search status = %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, treestore.NewMemoryBackend(), nil)
	env.do(t, http.MethodGet, "/api/health", nil)

	rr := env.do(t, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "topictree_http_requests_total") {
		t.Fatal("metrics missing request counter")
	}
}
