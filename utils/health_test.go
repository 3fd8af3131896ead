package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestHealthMonitorCheck(t *testing.T) {
	h := NewHealthMonitor(zap.NewNop(), map[string]Pinger{
		"mongo": PingFunc(func(context.Context) error { return nil }),
		"redis": PingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})

	assert.False(t, h.Status().Healthy)

	status := h.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.True(t, status.Services["mongo"])
	assert.False(t, status.Services["redis"])
	assert.Equal(t, status, h.Status())
}

func TestHealthMonitorAllUp(t *testing.T) {
	h := NewHealthMonitor(zap.NewNop(), map[string]Pinger{
		"mongo": PingFunc(func(context.Context) error { return nil }),
	})
	assert.True(t, h.Check(context.Background()).Healthy)
}
