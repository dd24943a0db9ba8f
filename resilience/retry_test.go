package resilience_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
	"github.com/vaultmesh/accesskit/resilience"
)

func TestRetryExhaustsAttempts(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	attempts := 0
	finalErr := fmt.Errorf("persistent failure")

	err := resilience.Retry(
		utCtx,
		resilience.RetryParams{MaxAttempts: 4, Delay: time.Millisecond},
		func(ctx context.Context) error {
			attempts++
			return finalErr
		},
	)
	assert.ErrorIs(err, finalErr)
	assert.Equal(4, attempts)
}

func TestRetryStopsEarlyOnSuccess(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	attempts := 0
	result, err := resilience.RetryWithResult(
		utCtx,
		resilience.RetryParams{MaxAttempts: 5, Delay: time.Millisecond},
		func(ctx context.Context) (string, error) {
			attempts++
			if attempts < 3 {
				return "", fmt.Errorf("transient failure")
			}
			return "done", nil
		},
	)
	assert.Nil(err)
	assert.Equal("done", result)
	assert.Equal(3, attempts)
}

func TestRetryHonorsShouldRetry(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	fatalErr := fmt.Errorf("do not retry this")

	attempts := 0
	err := resilience.Retry(
		utCtx,
		resilience.RetryParams{
			MaxAttempts: 5,
			Delay:       time.Millisecond,
			ShouldRetry: func(err error) bool { return false },
		},
		func(ctx context.Context) error {
			attempts++
			return fatalErr
		},
	)
	assert.ErrorIs(err, fatalErr)
	assert.Equal(1, attempts)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := resilience.Retry(
		utCtx,
		resilience.RetryParams{MaxAttempts: 10, Delay: time.Second},
		func(ctx context.Context) error {
			attempts++
			cancel()
			return fmt.Errorf("transient failure")
		},
	)
	assert.Error(err)
	assert.ErrorIs(err, context.Canceled)
	assert.Equal(1, attempts)
}
