package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/AnTengye/contracthub/config"
	"github.com/AnTengye/contracthub/middleware"
	"github.com/AnTengye/contracthub/service"
	"github.com/AnTengye/contracthub/store"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeFiles is an in-memory FileStorage.
type fakeFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	putErr  error
	n       int
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{objects: make(map[string][]byte)}
}

func (f *fakeFiles) Put(_ context.Context, contractID, filename string, r io.Reader, _ int64, _ string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	ref := fmt.Sprintf("contracts/%s/%d-%s", contractID, f.n, filename)
	f.objects[ref] = data
	return ref, nil
}

func (f *fakeFiles) URL(_ context.Context, ref, _ string) (string, error) {
	return "https://files.example.com/" + ref, nil
}

func (f *fakeFiles) Delete(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, ref)
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeFiles) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{CORSOrigin: "*"},
		Auth:   config.AuthConfig{JWTSecret: "test-secret", TokenExpireHours: 1},
		Upload: config.UploadConfig{MaxSizeMB: 1},
		Users: []config.User{
			{ID: "admin-1", Username: "alice", Name: "Alice", Role: "ADMIN", Password: "adminpass"},
			{ID: "reviewer-1", Username: "rita", Name: "Rita", Role: "REVIEWER", Password: "ritapass"},
			{ID: "reviewer-2", Username: "rob", Name: "Rob", Role: "CLIENT", Password: "robpass"},
		},
	}
}

type testServer struct {
	t      *testing.T
	cfg    *config.Config
	router *gin.Engine
	files  *fakeFiles
	tokens map[string]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := testConfig()
	files := newFakeFiles()
	workflow := service.NewWorkflow(store.NewMemoryStore(), nil, service.WorkflowOptions{Reviewers: cfg})

	s := &testServer{
		t:      t,
		cfg:    cfg,
		router: NewRouter(cfg, workflow, files),
		files:  files,
		tokens: make(map[string]string),
	}
	for i := range cfg.Users {
		token, _, err := middleware.GenerateToken(&cfg.Users[i], &cfg.Auth)
		if err != nil {
			t.Fatalf("Failed to generate token: %v", err)
		}
		s.tokens[cfg.Users[i].Username] = token
	}
	return s
}

func (s *testServer) do(method, path, user string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("Failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[user])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(contractID, user, filename string, content []byte) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		s.t.Fatalf("Failed to create form file: %v", err)
	}
	part.Write(content)
	mw.Close()

	req := httptest.NewRequest("POST", "/api/contracts/"+contractID+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.tokens[user])
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("Expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

var pdfContent = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n")

var errStorageDown = errors.New("storage down")
