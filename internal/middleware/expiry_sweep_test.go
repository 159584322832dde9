package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/tuition-ledger-api/internal/dto"
	"github.com/noah-isme/tuition-ledger-api/pkg/clock"
)

type sweeperStub struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
}

func (s *sweeperStub) ExpireSessions(ctx context.Context, today time.Time) (*dto.ExpirySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, today)
	if s.err != nil {
		return nil, s.err
	}
	return &dto.ExpirySummary{}, nil
}

func sweepRouter(sweeper expirySweeper, interval time.Duration) *gin.Engine {
	gin.SetMode(gin.TestMode)
	zone := clock.Fixed(time.Date(2024, time.July, 1, 9, 30, 0, 0, time.UTC))
	router := gin.New()
	router.Use(ExpirySweep(sweeper, zone, ExpirySweepConfig{MinInterval: interval}, nil))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return router
}

func TestExpirySweepThrottles(t *testing.T) {
	sweeper := &sweeperStub{}
	router := sweepRouter(sweeper, time.Hour)

	for i := 0; i < 3; i++ {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, recorder.Code)
	}
	if assert.Len(t, sweeper.calls, 1) {
		assert.Equal(t, time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC), sweeper.calls[0])
	}
}

func TestExpirySweepFailureDoesNotFailRequest(t *testing.T) {
	sweeper := &sweeperStub{err: errors.New("database unavailable")}
	router := sweepRouter(sweeper, 0)

	for i := 0; i < 2; i++ {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, recorder.Code)
	}
	assert.Len(t, sweeper.calls, 2)
}

func TestExpirySweepWithoutSweeper(t *testing.T) {
	recorder := httptest.NewRecorder()
	sweepRouter(nil, time.Minute).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, recorder.Code)
}
