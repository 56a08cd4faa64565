package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/clarify-edu/clarify-api/pkg/logger"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "0190a4c2-7b1e-7000-8000-000000000001",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: "student@example.edu",
		Role:  "authenticated",
	}
}

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetUserID(r.Context()) + "|" + GetEmail(r.Context())))
	})
}

func TestAuth(t *testing.T) {
	h := Auth(NewJWTVerifier(testSecret))(echoIdentity())

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noEmail := validClaims()
	noEmail.Email = ""

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims()), http.StatusOK,
			"0190a4c2-7b1e-7000-8000-000000000001|student@example.edu"},
		{"lowercase scheme", "bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims()), http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims()), http.StatusUnauthorized, ""},
		{"wrong algorithm", "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims()), http.StatusUnauthorized, ""},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired), http.StatusUnauthorized, ""},
		{"no email", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noEmail), http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

type stubVerifier struct{}

func (stubVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token != "good" {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: "u-1", Email: "a@b.c"}, nil
}

func TestLogging_CorrelationAndUser(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := logger.New(zap.New(core))

	h := Logging(log)(Auth(stubVerifier{})(echoIdentity()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set("X-Correlation-ID", "corr-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "corr-1", rec.Header().Get("X-Correlation-ID"))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "corr-1", fields["correlation_id"])
	assert.Equal(t, "u-1", fields["user_id"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
}

func TestLogging_GeneratesCorrelationID(t *testing.T) {
	var seen string
	h := Logging(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Correlation-ID"))
}

func TestUserRateLimit(t *testing.T) {
	h := UserRateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithIdentity(req.Context(), Identity{UserID: user}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("a"))
	assert.Equal(t, http.StatusOK, do("a"))
	assert.Equal(t, http.StatusTooManyRequests, do("a"))
	assert.Equal(t, http.StatusOK, do("b"), "limits are per user")
}

func TestValidation(t *testing.T) {
	assert.NoError(t, ValidateID("course ID", "0190a4c2-7b1e-7000-8000-000000000001"))
	assert.EqualError(t, ValidateID("course ID", "nope"), "invalid course ID format")

	assert.NoError(t, ValidateTitle("Why does recursion need a base case?"))
	assert.Error(t, ValidateTitle("   "))
	assert.Error(t, ValidateTitle(string(make([]rune, maxTitleLength+1))))

	assert.NoError(t, ValidateContent("body"))
	assert.Error(t, ValidateContent(""))
	assert.Error(t, ValidateContent("\xff"))

	assert.NoError(t, ValidateTags([]string{"week-1", "recursion"}))
	assert.Error(t, ValidateTags([]string{""}))
	assert.Error(t, ValidateTags(make([]string, maxTags+1)))

	assert.NoError(t, ValidateQuery("base case"))
	assert.Error(t, ValidateQuery(" "))
}

func TestValidateCourse(t *testing.T) {
	assert.NoError(t, ValidateCourse("CS101", "Intro to Programming"))
	assert.Error(t, ValidateCourse(" ", "Intro"))
	assert.Error(t, ValidateCourse("CS101", ""))
	assert.Error(t, ValidateCourse(strings.Repeat("X", 33), "Intro"))
}

func TestValidateEmails(t *testing.T) {
	tests := []struct {
		name    string
		emails  []string
		wantErr bool
	}{
		{"valid", []string{"ann@example.edu", " Ben@Example.edu "}, false},
		{"empty list", nil, true},
		{"not an address", []string{"ann@example.edu", "ben"}, true},
		{"blank entry", []string{""}, true},
		{"too many", make([]string, maxEnrollBatch+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmails(tt.emails)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
