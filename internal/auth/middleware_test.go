package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newGuardedRouter(iss *Issuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Authenticate(iss), func(c *gin.Context) {
		id, _ := Identity(c)
		c.JSON(http.StatusOK, gin.H{"username": id.Username})
	})
	r.POST("/materials", Authenticate(iss), RequireRole(RoleOrganizer), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	return r
}

func TestAuthenticateStatuses(t *testing.T) {
	iss := NewIssuer("secret", "makesta", 0)
	r := newGuardedRouter(iss)
	tok, _ := iss.Issue(3, "alice", RoleParticipant)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + tok.Value, http.StatusOK},
		{"lowercase scheme", "bearer " + tok.Value, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d body=%s", tc.name, tc.want, rr.Code, rr.Body.String())
		}
	}
}

func TestRequireRole(t *testing.T) {
	iss := NewIssuer("secret", "makesta", 0)
	r := newGuardedRouter(iss)
	participant, _ := iss.Issue(3, "alice", RoleParticipant)
	organizer, _ := iss.Issue(1, "panitia", RoleOrganizer)

	req := httptest.NewRequest(http.MethodPost, "/materials", nil)
	req.Header.Set("Authorization", "Bearer "+participant.Value)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/materials", nil)
	req.Header.Set("Authorization", "Bearer "+organizer.Value)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
}
