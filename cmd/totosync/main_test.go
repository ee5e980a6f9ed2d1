package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	lottery "github.com/kydenul/lottery-checker"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: exitOK},
		{name: "source unavailable", err: lottery.ErrSourceUnavailable.Clone().WithCause(errors.New("dial tcp: timeout")), want: exitSourceUnavailable},
		{name: "wrapped source unavailable", err: fmt.Errorf("sync: %w", lottery.ErrSourceUnavailable), want: exitSourceUnavailable},
		{name: "lock held elsewhere", err: lottery.ErrLockAcquisitionFailed, want: exitOK},
		{name: "persistence", err: lottery.ErrPersistence, want: exitFailure},
		{name: "redis down", err: lottery.ErrRedisConnectionFailed, want: exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
