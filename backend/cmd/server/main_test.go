package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reqgraph/backend/internal/engine"
	"reqgraph/backend/internal/extract"
	"reqgraph/backend/internal/graph"
	"reqgraph/backend/internal/source"
	"reqgraph/backend/internal/vector"
	apperrors "reqgraph/backend/pkg/errors"
)

// stubLLM replies to mention prompts with mentions and to everything else
// with reply.
type stubLLM struct {
	mentions string
	reply    string
}

func (s stubLLM) Complete(_ context.Context, prompt string) (string, error) {
	if strings.HasPrefix(prompt, "List the named entities") {
		return s.mentions, nil
	}
	return s.reply, nil
}

// lengthEmbedder embeds text as its length and word count.
type lengthEmbedder struct{}

func (lengthEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), float32(len(strings.Fields(text))), 1}, nil
}

func (e lengthEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func newTestRouter(t *testing.T, store graph.Store) *gin.Engine {
	t.Helper()
	return newTestRouterIn(t, store, "")
}

// newTestRouterIn builds a router that accepts local inputs under root.
func newTestRouterIn(t *testing.T, store graph.Store, root string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	llm := stubLLM{
		mentions: "Door Controller",
		reply:    `{"triples": [{"subject": "Door Controller", "predicate": "monitors", "object": "Door Sensor"}]}`,
	}
	idx := vector.NewMemoryIndex()
	return newRouter(&server{
		engine:     engine.New(store, idx, llm, lengthEmbedder{}),
		ingestor:   engine.NewIngestor(store, engine.WithPassageIndex(idx, lengthEmbedder{}), engine.WithExtractor(extract.NewExtractor(llm))),
		opener:     source.NewOpener("", ""),
		log:        zap.NewNop(),
		ingestRoot: root,
	})
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, graph.NewMemoryStore())

	w := do(router, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestQueryEndpoint_InvalidRequest(t *testing.T) {
	router := newTestRouter(t, graph.NewMemoryStore())

	w := do(router, "POST", "/api/query", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, "POST", "/api/retrieve", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestTriplesThenRetrieve(t *testing.T) {
	router := newTestRouter(t, graph.NewMemoryStore())

	w := do(router, "POST", "/api/ingest/triples", `[
		{"subject": "Door Controller", "predicate": "monitors", "object": "Door Sensor"},
		{"subject": "Door Sensor", "predicate": "triggers", "object": "Door Actuator"},
		{"subject": "", "predicate": "x", "object": "y"}
	]`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode(t, w)
	assert.EqualValues(t, 1, report["skipped"])
	assert.EqualValues(t, 3, report["counts"].(map[string]any)["nodes_created"])

	w = do(router, "POST", "/api/retrieve", `{"question": "What does the door controller monitor?"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	body := decode(t, w)
	assert.Equal(t, w.Header().Get("X-Request-ID"), body["request_id"])
	assert.NotEmpty(t, body["evidence"])
	assert.Contains(t, body["context"], "Door Controller")

	w = do(router, "POST", "/api/query", `{"question": "What does the door controller monitor?"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode(t, w)["answer"])

	w = do(router, "GET", "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.EqualValues(t, 3, stats["nodes"])
	assert.EqualValues(t, 2, stats["relationships"])
}

func TestIngestTriples_Malformed(t *testing.T) {
	router := newTestRouter(t, graph.NewMemoryStore())
	w := do(router, "POST", "/api/ingest/triples", `{"triples": [`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

const model = `<xmi:XMI xmi:version="2.0" xmlns:xmi="http://www.omg.org/XMI">
  <contents xmi:type="trufun:TDiagram" xmi:id="d1" name="Door" stereotype="SysmlRequirementDiagram">
    <nodes xmi:type="trufun:TClassNode" xmi:id="r1" name="Door Opening" stereotype="requirement"/>
  </contents>
</xmi:XMI>`

func TestIngestModelEndpoint(t *testing.T) {
	root := t.TempDir()
	router := newTestRouterIn(t, graph.NewMemoryStore(), root)

	w := do(router, "POST", "/api/ingest/model?source=door.xmi", model)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "door.xmi", decode(t, w)["source"])

	p := filepath.Join(root, "door.xmi")
	require.NoError(t, os.WriteFile(p, []byte(model), 0o644))
	w = do(router, "POST", "/api/ingest/model?uri="+p, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 0, decode(t, w)["counts"].(map[string]any)["nodes_created"])

	w = do(router, "POST", "/api/ingest/model", "<not-xmi/>")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestDocumentEndpoint(t *testing.T) {
	router := newTestRouter(t, graph.NewMemoryStore())

	w := do(router, "POST", "/api/ingest/documents", `{"source": "door.txt", "text": "The door controller monitors the door sensor.", "extract": true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode(t, w)
	assert.EqualValues(t, 1, report["passages"])
	assert.EqualValues(t, 1, report["triples"])

	w = do(router, "POST", "/api/ingest/documents", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, "POST", "/api/ingest/documents", `{"uri": "/does/not/exist.txt"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestEndpoints_RefuseFilesOutsideRoot(t *testing.T) {
	root := t.TempDir()
	secret := filepath.Join(t.TempDir(), "secret.env")
	require.NoError(t, os.WriteFile(secret, []byte("DB_PASSWORD=hunter2"), 0o600))
	store := graph.NewMemoryStore()

	for name, router := range map[string]*gin.Engine{
		"no root":   newTestRouter(t, store),
		"with root": newTestRouterIn(t, store, root),
	} {
		t.Run(name, func(t *testing.T) {
			for _, uri := range []string{secret, "/etc/passwd", "../../etc/passwd", "file:///etc/passwd"} {
				body, _ := json.Marshal(map[string]string{"uri": uri})
				w := do(router, "POST", "/api/ingest/documents", string(body))
				assert.Equal(t, http.StatusBadRequest, w.Code, uri)
				assert.Contains(t, w.Body.String(), "not permitted", uri)

				w = do(router, "POST", "/api/ingest/model?uri="+url.QueryEscape(uri), "")
				assert.Equal(t, http.StatusBadRequest, w.Code, uri)
			}

			w := do(router, "POST", "/api/retrieve", `{"question": "what is the password"}`)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.NotContains(t, w.Body.String(), "hunter2")
		})
	}
}

func TestIngestDocumentEndpoint_UnderRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "door.txt"), []byte("The door controller monitors the door sensor."), 0o644))
	router := newTestRouterIn(t, graph.NewMemoryStore(), root)

	w := do(router, "POST", "/api/ingest/documents", `{"uri": "door.txt"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode(t, w)["passages"])
	assert.Equal(t, "door.txt", decode(t, w)["source"])
}

func TestStoreUnavailable(t *testing.T) {
	store := graph.NewMemoryStore()
	require.NoError(t, store.Close(context.Background()))
	router := newTestRouter(t, store)

	w := do(router, "POST", "/api/ingest/triples", `[{"subject": "a", "predicate": "p", "object": "b"}]`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.NewParseError("x", "bad", nil), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", apperrors.NewStoreUnavailable("query", errors.New("down"))), http.StatusServiceUnavailable},
		{apperrors.NewLLMFailed("m", 3, errors.New("boom")), http.StatusBadGateway},
		{apperrors.NewContextCancelled("expand", context.Canceled), http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
