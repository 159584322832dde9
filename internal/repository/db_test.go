package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("insert enrollment: %w", &pq.Error{Code: "23505", Constraint: "enrollments_one_active_per_student"})
	assert.True(t, IsUniqueViolation(wrapped))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestNormalizePage(t *testing.T) {
	cases := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{0, 0, 1, 20},
		{-3, 10, 1, 10},
		{4, 101, 4, 20},
		{2, 100, 2, 100},
	}
	for _, tc := range cases {
		page, size := normalizePage(tc.page, tc.size)
		assert.Equal(t, tc.wantPage, page)
		assert.Equal(t, tc.wantSize, size)
	}
}
