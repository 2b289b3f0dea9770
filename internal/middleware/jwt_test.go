package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type stubAuthenticator struct {
	role models.UserRole
	err  error
}

func (s stubAuthenticator) Authenticate(ctx context.Context, token string, role models.UserRole) (*models.JWTClaims, error) {
	if s.err != nil {
		return nil, s.err
	}
	if token != "good" || role != s.role {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return &models.JWTClaims{UserID: "u1", Role: role}, nil
}

func newJWTRouter(auth Authenticator, role models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", JWT(auth, role), func(c *gin.Context) {
		claims := Claims(c)
		c.String(http.StatusOK, claims.UserID)
	})
	return r
}

func TestJWTMiddleware(t *testing.T) {
	cases := []struct {
		name   string
		header string
		auth   stubAuthenticator
		status int
	}{
		{"missing header", "", stubAuthenticator{role: models.RoleTeacher}, http.StatusUnauthorized},
		{"wrong scheme", "Basic good", stubAuthenticator{role: models.RoleTeacher}, http.StatusUnauthorized},
		{"other kind", "Bearer good", stubAuthenticator{role: models.RoleStudent}, http.StatusUnauthorized},
		{"inactive", "Bearer good", stubAuthenticator{role: models.RoleTeacher, err: appErrors.ErrForbidden}, http.StatusForbidden},
		{"valid", "bearer good", stubAuthenticator{role: models.RoleTeacher}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newJWTRouter(tc.auth, models.RoleTeacher)
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "u1", rec.Body.String())
			}
		})
	}
}
