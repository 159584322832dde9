package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func actorRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Actor(testSecret))
	router.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, ActorID(c))
	})
	return router
}

func TestActorAcceptsValidToken(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
		Subject:   "op-7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	actorRouter().ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "op-7", recorder.Body.String())
}

func TestActorRejectsBadCredentials(t *testing.T) {
	expired := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
		Subject:   "op-7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	wrongKey := signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.RegisteredClaims{Subject: "op-7"})
	noSubject := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{})

	cases := map[string]string{
		"missing":    "",
		"scheme":     "Basic abc",
		"expired":    "Bearer " + expired,
		"wrong key":  "Bearer " + wrongKey,
		"no subject": "Bearer " + noSubject,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			actorRouter().ServeHTTP(recorder, req)
			assert.Equal(t, http.StatusUnauthorized, recorder.Code)
		})
	}
}

func TestParseActorRejectsOtherAlgorithms(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.RegisteredClaims{Subject: "op-7"})
	_, err := ParseActor(token, testSecret)
	assert.Error(t, err)
}
