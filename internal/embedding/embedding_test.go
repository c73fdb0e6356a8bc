package embedding

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ollama/ollama/api"
)

func newTestOllama(t *testing.T, base, model string) *Ollama {
	t.Helper()
	emb, err := NewOllama(OllamaConfig{APIBase: base, Model: model, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new ollama embedder: %v", err)
	}
	return emb
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// --- Ollama ---

func TestOllama_EmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("expected model 'test-model', got %q", req.Model)
		}
		out := make([][]float32, len(req.Input))
		for i := range req.Input {
			out[i] = []float32{float32(i), 0.5}
		}
		json.NewEncoder(w).Encode(api.EmbedResponse{Model: req.Model, Embeddings: out})
	}))
	defer server.Close()

	emb := newTestOllama(t, server.URL, "test-model")
	vecs, err := emb.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	if vecs[2][0] != 2 {
		t.Fatalf("vectors out of order: %v", vecs)
	}
}

func TestOllama_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.EmbedResponse{Embeddings: [][]float32{{0.1, 0.2, 0.3}}})
	}))
	defer server.Close()

	emb := newTestOllama(t, server.URL, "")
	vec, err := emb.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3 dims, got %d", len(vec))
	}
}

func TestOllama_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer server.Close()

	emb := newTestOllama(t, server.URL, "")
	if _, err := emb.Embed(context.Background(), "test"); err == nil {
		t.Fatal("should error on 500")
	}
}

func TestOllama_InvalidBaseURL(t *testing.T) {
	if _, err := NewOllama(OllamaConfig{APIBase: "http://[::1"}); err == nil {
		t.Fatal("expected error for malformed base URL")
	}
}

func TestOllama_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.EmbedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer server.Close()

	emb := newTestOllama(t, server.URL, "")
	if _, err := emb.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error when server returns fewer embeddings")
	}
}

func TestOllama_DefaultValues(t *testing.T) {
	emb, err := NewOllama(OllamaConfig{})
	if err != nil {
		t.Fatalf("new ollama embedder: %v", err)
	}
	if emb.baseURL != "http://localhost:11434" {
		t.Error("should default to localhost")
	}
	if emb.Model() != "nomic-embed-text" {
		t.Error("should default to nomic-embed-text")
	}
}

// --- Hash ---

func TestHash_Deterministic(t *testing.T) {
	h := NewHash(256)
	a, _ := h.Embed(context.Background(), "Intro to Testing")
	b, _ := h.Embed(context.Background(), "Intro to Testing")
	if cosine(a, b) < 0.9999 {
		t.Fatalf("same text should embed identically, cosine=%v", cosine(a, b))
	}
}

func TestHash_SharedWordsAreCloser(t *testing.T) {
	h := NewHash(512)
	title, _ := h.Embed(context.Background(), "Intro to Testing")
	partial, _ := h.Embed(context.Background(), "testing")
	unrelated, _ := h.Embed(context.Background(), "Nonexistent Course 404")

	if cosine(title, partial) <= cosine(title, unrelated) {
		t.Fatalf("partial name should be closer than unrelated name: %v vs %v",
			cosine(title, partial), cosine(title, unrelated))
	}
}

func TestHash_UnitLength(t *testing.T) {
	h := NewHash(64)
	v, _ := h.Embed(context.Background(), "mock objects simulate dependencies")
	if n := cosine(v, v); math.Abs(n-1) > 1e-6 {
		t.Fatalf("expected unit vector, self-cosine=%v", n)
	}
}

func TestHash_EmptyTextIsZeroVector(t *testing.T) {
	h := NewHash(32)
	v, err := h.Embed(context.Background(), "the of a")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatalf("stopword-only text should embed to zero vector, got %v", v)
		}
	}
}

func TestHash_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHash(32).Embed(ctx, "x"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("What does Lesson 3 of Intro-to-Testing cover?")
	want := []string{"lesson", "3", "intro", "testing", "cover"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
