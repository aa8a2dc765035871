package knowledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/christried/GilgesBA/pkg/support/assistant"
)

// fakeProvider records provisioning calls against the remote API.
type fakeProvider struct {
	mu            sync.Mutex
	assistantBody map[string]any
	uploads       int
	attached      int
	failVS        bool
}

func (f *fakeProvider) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /assistants", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.assistantBody = body
		f.mu.Unlock()
		writeJSON(w, map[string]any{"id": "asst_1"})
	})
	mux.HandleFunc("POST /vector_stores", func(w http.ResponseWriter, _ *http.Request) {
		if f.failVS {
			w.WriteHeader(http.StatusInternalServerError)
			writeJSON(w, map[string]any{"error": map[string]any{"message": "unavailable"}})
			return
		}
		writeJSON(w, map[string]any{"id": "vs_1"})
	})
	mux.HandleFunc("POST /vector_stores/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"id": "vs_1"})
	})
	mux.HandleFunc("POST /vector_stores/{id}/files", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.attached++
		f.mu.Unlock()
		writeJSON(w, map[string]any{"id": "vsf_1"})
	})
	mux.HandleFunc("POST /files", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.uploads++
		f.mu.Unlock()
		writeJSON(w, map[string]any{"id": "file_1"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeProvider) toolTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	tools, _ := f.assistantBody["tools"].([]any)
	var types []string
	for _, raw := range tools {
		tool, _ := raw.(map[string]any)
		t, _ := tool["type"].(string)
		types = append(types, t)
	}
	return types
}

func writeKnowledgeDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"faq.md":        "# FAQ",
		"products.json": `{"products":[]}`,
		"notes.txt":     "internal notes",
		"ignored.xlsx":  "binary",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write knowledge file: %v", err)
		}
	}
	return dir
}

func TestProvisionWithKnowledgeDir(t *testing.T) {
	fake := &fakeProvider{}
	srv := fake.server(t)
	client := assistant.NewClient(srv.URL, "test-key", nil)

	id, err := Provision(context.Background(), client, Options{
		Name:  "supportd",
		Model: "gpt-4.1-nano",
		Dir:   writeKnowledgeDir(t),
	}, nil)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if id != "asst_1" {
		t.Fatalf("assistant id = %q", id)
	}

	// Only supported extensions are uploaded.
	if fake.uploads != 3 {
		t.Fatalf("uploads = %d, want 3", fake.uploads)
	}
	if fake.attached != 3 {
		t.Fatalf("attached = %d, want 3", fake.attached)
	}

	types := fake.toolTypes()
	if len(types) != 2 {
		t.Fatalf("tool types = %v, want function and file_search", types)
	}
	hasFunction, hasSearch := false, false
	for _, tt := range types {
		switch tt {
		case "function":
			hasFunction = true
		case "file_search":
			hasSearch = true
		}
	}
	if !hasFunction || !hasSearch {
		t.Fatalf("tool types = %v, want function and file_search", types)
	}
}

func TestProvisionWithoutKnowledgeDir(t *testing.T) {
	fake := &fakeProvider{}
	srv := fake.server(t)
	client := assistant.NewClient(srv.URL, "test-key", nil)

	id, err := Provision(context.Background(), client, Options{
		Name:  "supportd",
		Model: "gpt-4.1-nano",
	}, nil)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if id != "asst_1" {
		t.Fatalf("assistant id = %q", id)
	}
	if fake.uploads != 0 {
		t.Fatalf("uploads = %d, want 0", fake.uploads)
	}

	types := fake.toolTypes()
	if len(types) != 1 || types[0] != "function" {
		t.Fatalf("tool types = %v, want the function tool only", types)
	}
}

func TestProvisionSurvivesVectorStoreFailure(t *testing.T) {
	fake := &fakeProvider{failVS: true}
	srv := fake.server(t)
	client := assistant.NewClient(srv.URL, "test-key", nil)

	id, err := Provision(context.Background(), client, Options{
		Name:  "supportd",
		Model: "gpt-4.1-nano",
		Dir:   writeKnowledgeDir(t),
	}, nil)
	if err != nil {
		t.Fatalf("provision must tolerate an unavailable vector store: %v", err)
	}
	if id != "asst_1" {
		t.Fatalf("assistant id = %q", id)
	}

	types := fake.toolTypes()
	if len(types) != 1 || types[0] != "function" {
		t.Fatalf("tool types = %v, want the function tool only", types)
	}
}
