package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env     string
		debugOn   bool
	}{
		{env: "production", debugOn: false},
		{env: "development", debugOn: true},
		{env: "", debugOn: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.env, func(t *testing.T) {
			t.Parallel()
			l := New(tt.env)
			assert.NotNil(t, l)
			assert.Equal(t, tt.debugOn, l.Core().Enabled(zapcore.DebugLevel))
		})
	}
}
