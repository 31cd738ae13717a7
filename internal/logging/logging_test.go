package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	t.Parallel()
	cases := []struct {
		level string
		debug bool
		warn  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, true},
		{"error", false, false},
		{"", false, true},
		{"bogus", false, true},
	}
	for _, tc := range cases {
		log := New(tc.level)
		assert.Equal(t, tc.debug, log.Core().Enabled(zapcore.DebugLevel), "level=%q", tc.level)
		assert.Equal(t, tc.warn, log.Core().Enabled(zapcore.WarnLevel), "level=%q", tc.level)
	}
}
