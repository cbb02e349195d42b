package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func adminHandler(t *testing.T, plainToken string) *Handler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plainToken), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}
	return &Handler{adminTokenHash: string(hash)}
}

func TestHandleModerateRejectsMissingAuthHeader(t *testing.T) {
	h := adminHandler(t, "super-secret")

	req := httptest.NewRequest(http.MethodPost, "/admin/moderate", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.handleModerate(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestHandleModerateRejectsWrongToken(t *testing.T) {
	h := adminHandler(t, "super-secret")

	req := httptest.NewRequest(http.MethodPost, "/admin/moderate", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	h.handleModerate(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestHandleModerateRejectsWhenNoHashConfigured(t *testing.T) {
	h := &Handler{}

	req := httptest.NewRequest(http.MethodPost, "/admin/moderate", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	h.handleModerate(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}
