package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var secret = []byte("secret")

func ownerEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(secret))
	r.GET("/me", func(c *gin.Context) {
		owner, ok := Owner(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"owner": owner})
	})
	return r
}

func serve(r *gin.Engine, header string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)
	return w.Code
}

func sign(t *testing.T, method jwt.SigningMethod, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, Claims{RegisteredClaims: claims}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestMiddlewareAcceptsIssuedToken(t *testing.T) {
	token, err := IssueToken("0xa11ce", secret, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if code := serve(ownerEngine(), "Bearer "+token); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestMiddlewareRejects(t *testing.T) {
	now := time.Now()
	valid := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   "0xa11ce",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	expired, _ := IssueToken("0xa11ce", secret, time.Minute, now.Add(-time.Hour))
	otherIssuer := valid
	otherIssuer.Issuer = "someone-else"
	noExpiry := valid
	noExpiry.ExpiresAt = nil
	noSubject := valid
	noSubject.Subject = ""

	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic abc"},
		{"garbage", "Bearer not-a-jwt"},
		{"expired", "Bearer " + expired},
		{"other algorithm", "Bearer " + sign(t, jwt.SigningMethodHS512, valid)},
		{"other issuer", "Bearer " + sign(t, jwt.SigningMethodHS256, otherIssuer)},
		{"no expiry", "Bearer " + sign(t, jwt.SigningMethodHS256, noExpiry)},
		{"no subject", "Bearer " + sign(t, jwt.SigningMethodHS256, noSubject)},
	}
	r := ownerEngine()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if code := serve(r, tc.header); code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", code)
			}
		})
	}
}

func TestExtractBearer(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Bearer":       "",
		"Token abc":    "",
		"":             "",
	}
	for header, want := range cases {
		if got := ExtractBearer(header); got != want {
			t.Fatalf("ExtractBearer(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestMiddlewareRejectionBody(t *testing.T) {
	w := httptest.NewRecorder()
	ownerEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	if w.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected bearer challenge header")
	}
	var body rejection
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != "UNAUTHORIZED" || body.Message != "missing token" {
		t.Fatalf("unexpected body %+v", body)
	}
}
