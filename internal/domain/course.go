package domain

import (
	"time"

	"github.com/google/uuid"
)

type Course struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Title      string
	PriceCents int64
	ImageURL   string
	Published  bool
	CreatedAt  time.Time
}

// Free reports whether the course can be enrolled without payment.
func (c *Course) Free() bool {
	return c.PriceCents == 0
}
