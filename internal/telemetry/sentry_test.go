package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInit_EmptyDSNIsNoop(t *testing.T) {
	flush := Init(Config{}, nil)
	assert.NotNil(t, flush)
	assert.NotPanics(t, flush)
}

func TestInit_InvalidDSNDegrades(t *testing.T) {
	flush := Init(Config{DSN: "not a dsn"}, nil)
	assert.NotPanics(t, flush)
}

func TestCaptureWithoutClient(t *testing.T) {
	assert.NotPanics(t, func() {
		CaptureError(context.Background(), errors.New("boom"))
		CaptureError(context.Background(), nil)
		AddBreadcrumb(context.Background(), "scrape", "started")
	})
}
