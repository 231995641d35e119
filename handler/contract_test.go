package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/AnTengye/contracthub/model"
)

type decisionResponse struct {
	Contract model.Contract `json:"contract"`
	Version  model.Version  `json:"version"`
}

func (s *testServer) createContract(title, reviewer string) model.Contract {
	s.t.Helper()
	w := s.do("POST", "/api/contracts", "alice", map[string]string{"title": title, "reviewer": reviewer})
	expectStatus(s.t, w, http.StatusCreated)
	return decode[model.Contract](s.t, w)
}

func (s *testServer) uploadVersion(contractID string) model.Version {
	s.t.Helper()
	w := s.upload(contractID, "alice", "contract.pdf", pdfContent)
	expectStatus(s.t, w, http.StatusCreated)
	return decode[model.Version](s.t, w)
}

func logActions(t *testing.T, body map[string][]map[string]any) []string {
	t.Helper()
	var out []string
	for _, e := range body["logs"] {
		out = append(out, e["action"].(string))
	}
	return out
}

func TestContractHandlerWorkflow(t *testing.T) {
	s := newTestServer(t)

	c := s.createContract("NDA", "reviewer-1")
	if c.Status != model.StatusDraft || c.OwnerID != "admin-1" {
		t.Fatalf("Unexpected contract %+v", c)
	}

	v1 := s.uploadVersion(c.ID)
	if v1.Sequence != 1 || v1.Status != model.StatusSubmitted {
		t.Fatalf("Unexpected version %+v", v1)
	}

	w := s.do("PUT", "/api/contracts/"+c.ID+"/versions/"+v1.ID+"/approve", "rita", nil)
	expectStatus(t, w, http.StatusOK)
	d := decode[decisionResponse](t, w)
	if d.Contract.Status != model.StatusApproved || d.Version.ApprovedBy != "reviewer-1" {
		t.Errorf("Unexpected decision %+v", d)
	}

	v2 := s.uploadVersion(c.ID)
	if v2.Sequence != 2 {
		t.Errorf("Expected sequence 2, got %d", v2.Sequence)
	}

	w = s.do("PUT", "/api/contracts/"+c.ID+"/versions/"+v2.ID+"/reject", "rita", map[string]string{"reason": "needs changes"})
	expectStatus(t, w, http.StatusOK)
	d = decode[decisionResponse](t, w)
	if d.Contract.Status != model.StatusRejected || d.Contract.RejectionReason != "needs changes" {
		t.Errorf("Unexpected decision %+v", d)
	}

	w = s.do("GET", "/api/contracts/"+c.ID+"/logs?scope=versions", "alice", nil)
	expectStatus(t, w, http.StatusOK)
	got := logActions(t, decode[map[string][]map[string]any](t, w))
	want := []string{"CONTRACT_REJECTED", "FILE_UPLOADED", "CONTRACT_APPROVED", "FILE_UPLOADED"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected logs %v, got %v", want, got)
	}

	w = s.do("GET", "/api/contracts/"+c.ID+"/logs?action=file_uploaded&limit=1", "alice", nil)
	expectStatus(t, w, http.StatusOK)
	logs := decode[map[string][]map[string]any](t, w)["logs"]
	if len(logs) != 1 || logs[0]["version_id"] != v2.ID {
		t.Errorf("Expected latest upload only, got %v", logs)
	}

	w = s.do("GET", "/api/contracts/"+c.ID+"/versions", "rita", nil)
	expectStatus(t, w, http.StatusOK)
	versions := decode[map[string][]model.Version](t, w)["versions"]
	if len(versions) != 2 || versions[0].Sequence != 2 {
		t.Errorf("Unexpected versions %+v", versions)
	}
}

func TestContractHandlerErrors(t *testing.T) {
	s := newTestServer(t)
	c := s.createContract("NDA", "reviewer-1")
	v := s.uploadVersion(c.ID)

	w := s.do("PUT", "/api/contracts/"+c.ID+"/versions/"+v.ID+"/approve", "rita", nil)
	expectStatus(t, w, http.StatusOK)

	tests := []struct {
		name           string
		method         string
		path           string
		user           string
		body           any
		expectedStatus int
	}{
		{"reviewer cannot create", "POST", "/api/contracts", "rita", map[string]string{"title": "x"}, http.StatusForbidden},
		{"empty title", "POST", "/api/contracts", "alice", map[string]string{"title": " "}, http.StatusBadRequest},
		{"unknown reviewer", "POST", "/api/contracts", "alice", map[string]string{"title": "x", "reviewer": "admin-1"}, http.StatusBadRequest},
		{"missing contract", "GET", "/api/contracts/missing", "alice", nil, http.StatusNotFound},
		{"unassigned reviewer cannot see", "GET", "/api/contracts/" + c.ID, "rob", nil, http.StatusNotFound},
		{"double approve", "PUT", "/api/contracts/" + c.ID + "/versions/" + v.ID + "/approve", "rita", nil, http.StatusConflict},
		{"reject decided version", "PUT", "/api/contracts/" + c.ID + "/versions/" + v.ID + "/reject", "rita", map[string]string{"reason": "late"}, http.StatusConflict},
		{"other reviewer approve", "PUT", "/api/contracts/" + c.ID + "/versions/" + v.ID + "/approve", "rob", nil, http.StatusForbidden},
		{"admin approve", "PUT", "/api/contracts/" + c.ID + "/versions/" + v.ID + "/approve", "alice", nil, http.StatusForbidden},
		{"missing version", "PUT", "/api/contracts/" + c.ID + "/versions/missing/approve", "rita", nil, http.StatusNotFound},
		{"reviewer reads logs", "GET", "/api/contracts/" + c.ID + "/logs", "rita", nil, http.StatusForbidden},
		{"bad scope", "GET", "/api/contracts/" + c.ID + "/logs?scope=everything", "alice", nil, http.StatusBadRequest},
		{"bad action", "GET", "/api/contracts/" + c.ID + "/logs?action=SIGNED", "alice", nil, http.StatusBadRequest},
		{"bad limit", "GET", "/api/contracts/" + c.ID + "/logs?limit=-1", "alice", nil, http.StatusBadRequest},
		{"bad since", "GET", "/api/contracts/" + c.ID + "/logs?since=yesterday", "alice", nil, http.StatusBadRequest},
		{"empty feedback", "POST", "/api/contracts/" + c.ID + "/versions/" + v.ID + "/feedback", "rita", map[string]string{"comment": ""}, http.StatusBadRequest},
		{"reviewer delete", "DELETE", "/api/contracts/" + c.ID, "rita", nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, tt.path, tt.user, tt.body)
			expectStatus(t, w, tt.expectedStatus)

			body := decode[map[string]string](t, w)
			if body["error"] == "" {
				t.Error("Expected error message")
			}
		})
	}
}

func TestContractHandlerErrorCarriesRequestID(t *testing.T) {
	s := newTestServer(t)

	req := s.do("GET", "/api/contracts/missing", "alice", nil)
	body := decode[map[string]string](t, req)
	if body["request_id"] == "" || body["request_id"] != req.Header().Get("X-Request-ID") {
		t.Errorf("Expected request_id %q in body, got %q", req.Header().Get("X-Request-ID"), body["request_id"])
	}
}

func TestContractHandlerList(t *testing.T) {
	s := newTestServer(t)
	s.createContract("A", "reviewer-1")
	s.createContract("B", "reviewer-2")
	s.createContract("C", "")

	tests := []struct {
		user          string
		expectedCount int
	}{
		{"alice", 3},
		{"rita", 1},
		{"rob", 1},
	}

	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			w := s.do("GET", "/api/contracts", tt.user, nil)
			expectStatus(t, w, http.StatusOK)
			contracts := decode[map[string][]model.Contract](t, w)["contracts"]
			if len(contracts) != tt.expectedCount {
				t.Errorf("Expected %d contracts, got %d", tt.expectedCount, len(contracts))
			}
		})
	}
}

func TestContractHandlerUploadValidation(t *testing.T) {
	s := newTestServer(t)
	c := s.createContract("NDA", "reviewer-1")

	tests := []struct {
		name           string
		user           string
		filename       string
		content        []byte
		expectedStatus int
	}{
		{"valid pdf", "alice", "nda.pdf", pdfContent, http.StatusCreated},
		{"wrong extension", "alice", "nda.docx", pdfContent, http.StatusBadRequest},
		{"not a pdf", "alice", "nda.pdf", []byte("<html><body>hello</body></html>"), http.StatusBadRequest},
		{"too large", "alice", "big.pdf", append(append([]byte{}, pdfContent...), make([]byte, 2<<20)...), http.StatusRequestEntityTooLarge},
		{"reviewer upload", "rita", "nda.pdf", pdfContent, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.upload(c.ID, tt.user, tt.filename, tt.content)
			expectStatus(t, w, tt.expectedStatus)
		})
	}

	if s.files.count() != 1 {
		t.Errorf("Expected 1 stored file, got %d", s.files.count())
	}

	w := s.upload("missing", "alice", "nda.pdf", pdfContent)
	expectStatus(t, w, http.StatusNotFound)
}

func TestContractHandlerUploadStorageFailure(t *testing.T) {
	s := newTestServer(t)
	c := s.createContract("NDA", "reviewer-1")
	s.files.putErr = errStorageDown

	w := s.upload(c.ID, "alice", "nda.pdf", pdfContent)
	expectStatus(t, w, http.StatusInternalServerError)

	w = s.do("GET", "/api/contracts/"+c.ID+"/versions", "alice", nil)
	expectStatus(t, w, http.StatusOK)
	if versions := decode[map[string][]model.Version](t, w)["versions"]; len(versions) != 0 {
		t.Errorf("Expected no versions, got %d", len(versions))
	}
}

func TestContractHandlerDownload(t *testing.T) {
	s := newTestServer(t)
	c := s.createContract("NDA", "reviewer-1")
	v := s.uploadVersion(c.ID)

	w := s.do("GET", "/api/contracts/"+c.ID+"/versions/"+v.ID+"/file", "rita", nil)
	expectStatus(t, w, http.StatusFound)
	if loc := w.Header().Get("Location"); loc != "https://files.example.com/"+v.FileRef {
		t.Errorf("Unexpected redirect %q", loc)
	}

	w = s.do("GET", "/api/contracts/"+c.ID+"/versions/"+v.ID+"/file", "rob", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestContractHandlerFeedback(t *testing.T) {
	s := newTestServer(t)
	c := s.createContract("NDA", "reviewer-1")
	v1 := s.uploadVersion(c.ID)
	v2 := s.uploadVersion(c.ID)

	w := s.do("POST", "/api/contracts/"+c.ID+"/versions/"+v2.ID+"/feedback", "rita", map[string]string{"comment": "see clause 4"})
	expectStatus(t, w, http.StatusCreated)

	w = s.do("GET", "/api/contracts/"+c.ID+"/versions/"+v1.ID+"/logs", "rita", nil)
	expectStatus(t, w, http.StatusOK)
	logs := decode[map[string][]map[string]any](t, w)["logs"]
	if len(logs) != 2 {
		t.Fatalf("Expected feedback and upload, got %v", logs)
	}
	meta := logs[0]["metadata"].(map[string]any)
	if logs[0]["action"] != "VERSION_FEEDBACK" || meta["comment"] != "see clause 4" {
		t.Errorf("Unexpected feedback entry %v", logs[0])
	}

	w = s.do("GET", "/api/contracts/"+c.ID, "rita", nil)
	if decode[model.Contract](t, w).Status != model.StatusSubmitted {
		t.Error("Feedback must not change the contract")
	}
}

func TestContractHandlerLegacyDecisions(t *testing.T) {
	s := newTestServer(t)
	c := s.createContract("NDA", "reviewer-1")
	s.uploadVersion(c.ID)

	w := s.do("PUT", "/api/contracts/"+c.ID+"/reject", "rita", nil)
	expectStatus(t, w, http.StatusOK)
	got := decode[model.Contract](t, w)
	if got.Status != model.StatusRejected || got.RejectionReason != model.DefaultRejectionReason {
		t.Errorf("Unexpected contract %+v", got)
	}

	w = s.do("PUT", "/api/contracts/"+c.ID+"/approve", "rita", nil)
	expectStatus(t, w, http.StatusOK)
	if decode[model.Contract](t, w).Status != model.StatusApproved {
		t.Error("Expected APPROVED")
	}

	w = s.do("PUT", "/api/contracts/"+c.ID+"/approve", "rob", nil)
	expectStatus(t, w, http.StatusForbidden)
}

func TestContractHandlerDelete(t *testing.T) {
	s := newTestServer(t)
	c := s.createContract("NDA", "reviewer-1")
	v1 := s.uploadVersion(c.ID)
	s.uploadVersion(c.ID)

	w := s.do("DELETE", "/api/contracts/"+c.ID, "alice", nil)
	expectStatus(t, w, http.StatusOK)

	if s.files.count() != 0 || len(s.files.deleted) != 2 {
		t.Errorf("Expected both files removed, %d left, %d deleted", s.files.count(), len(s.files.deleted))
	}

	w = s.do("GET", "/api/contracts/"+c.ID, "alice", nil)
	expectStatus(t, w, http.StatusNotFound)
	w = s.do("GET", "/api/contracts/"+c.ID+"/versions/"+v1.ID+"/file", "alice", nil)
	expectStatus(t, w, http.StatusNotFound)

	w = s.do("GET", "/api/contracts/"+c.ID+"/logs", "alice", nil)
	expectStatus(t, w, http.StatusOK)
	got := logActions(t, decode[map[string][]map[string]any](t, w))
	if len(got) != 0 {
		t.Errorf("Expected no audit entries after delete, got %v", got)
	}

	w = s.do("DELETE", "/api/contracts/"+c.ID, "alice", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do("GET", "/health", "", nil)
	expectStatus(t, w, http.StatusOK)
}
