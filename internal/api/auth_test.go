package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/crust/api/schemas"
	"github.com/xkilldash9x/crust/internal/config"
)

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.MapClaims{"sub": "tester", "exp": exp.Unix()})
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestBearerAuth(t *testing.T) {
	secret := []byte("s3cret")
	runner := &stubRunner{result: &schemas.RunResult{Command: "go", Message: schemas.MessageCompleted}}
	h := newTestServer(t, runner, config.ServerConfig{JWTSecret: string(secret)})
	body := `{"command":"go"}`
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name   string
		header []string
		want   int
	}{
		{"valid token", []string{"Authorization", "Bearer " + signToken(t, jwt.SigningMethodHS256, secret, future)}, http.StatusOK},
		{"missing header", nil, http.StatusUnauthorized},
		{"not bearer", []string{"Authorization", "Basic abc"}, http.StatusUnauthorized},
		{"wrong secret", []string{"Authorization", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), future)}, http.StatusUnauthorized},
		{"expired", []string{"Authorization", "Bearer " + signToken(t, jwt.SigningMethodHS256, secret, time.Now().Add(-time.Hour))}, http.StatusUnauthorized},
		{"other hmac method", []string{"Authorization", "Bearer " + signToken(t, jwt.SigningMethodHS512, secret, future)}, http.StatusUnauthorized},
		{"garbage", []string{"Authorization", "Bearer not.a.token"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postInteract(h, body, tt.header...)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, decodeBody(t, rec), "message")
			}
		})
	}
	assert.Equal(t, []string{"go"}, runner.seen())
}
