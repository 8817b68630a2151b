package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vgarvardt/gue/v5/adapter"
)

func TestGueLogAdapter_With(t *testing.T) {
	l := NewGueLoggerAdapter("status")
	wl := l.With(adapter.F("job", "1")).(*GueLogAdapter)
	assert.Equal(t, []adapter.Field{adapter.F("pool", "status"), adapter.F("job", "1")}, wl.fields)
	assert.Equal(t, []adapter.Field{adapter.F("pool", "status")}, l.fields)
}
