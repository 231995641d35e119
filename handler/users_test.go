package handler

import (
	"net/http"
	"testing"
)

func TestUserHandlerList(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name           string
		user           string
		query          string
		expectedStatus int
		expectedCount  int
	}{
		{"all users", "alice", "", http.StatusOK, 3},
		{"reviewers", "alice", "?role=REVIEWER", http.StatusOK, 2},
		{"admins", "alice", "?role=admin", http.StatusOK, 1},
		{"unknown role", "alice", "?role=OWNER", http.StatusBadRequest, 0},
		{"reviewer forbidden", "rita", "", http.StatusForbidden, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do("GET", "/api/users"+tt.query, tt.user, nil)
			expectStatus(t, w, tt.expectedStatus)

			if tt.expectedStatus == http.StatusOK {
				response := decode[map[string][]UserResponse](t, w)
				if len(response["users"]) != tt.expectedCount {
					t.Errorf("Expected %d users, got %d", tt.expectedCount, len(response["users"]))
				}
			}
		})
	}
}
