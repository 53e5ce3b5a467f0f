package repository

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
)

func TestNewRepositories(t *testing.T) {
	pool := &pgxpool.Pool{}

	assert.NotNil(t, NewStaffRepository(pool))
	assert.NotNil(t, NewTimelineRepository(pool))
	assert.NotNil(t, NewBookingRepository(pool))
	assert.NotNil(t, NewPaymentRepository(pool))
	assert.NotNil(t, NewCreditRepository(pool))
}

func TestMinutesIntoDay(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 600, minutesIntoDay(day.Add(10*time.Hour), day))
	assert.Equal(t, 0, minutesIntoDay(day.Add(-30*time.Minute), day))
	assert.Equal(t, 1440, minutesIntoDay(day.Add(25*time.Hour), day))
}
