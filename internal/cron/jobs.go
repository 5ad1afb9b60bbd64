package cron

import (
	"context"

	"gorm.io/gorm"
)

// Result reports how many rows a job run changed.
type Result struct {
	Affected int64
}

// Job is one unit of scheduled maintenance. Run must be safe to repeat:
// a cycle interrupted by a crash is simply run again by the next holder
// of the lease.
type Job interface {
	Name() string
	Run(ctx context.Context) (Result, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
