package logger

import (
	"testing"

	"sla_engine/internal/infra/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestInit(t *testing.T) {
	tests := map[string]struct {
		cfg       config.AppConfig
		wantLevel logrus.Level
		wantJSON  bool
	}{
		"production is json":         {cfg: config.AppConfig{LogLevel: "warn", Environment: "production"}, wantLevel: logrus.WarnLevel, wantJSON: true},
		"staging is json":            {cfg: config.AppConfig{LogLevel: "debug", Environment: "Staging"}, wantLevel: logrus.DebugLevel, wantJSON: true},
		"development is text":        {cfg: config.AppConfig{LogLevel: "info", Environment: "development"}, wantLevel: logrus.InfoLevel},
		"bad level defaults to info": {cfg: config.AppConfig{LogLevel: "loud", Environment: "development"}, wantLevel: logrus.InfoLevel},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			Init(&tt.cfg)
			assert.Equal(t, tt.wantLevel, Log.GetLevel())
			_, isJSON := Log.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.wantJSON, isJSON)
		})
	}
}

func TestComponent(t *testing.T) {
	e := Component("scheduler")
	assert.Equal(t, "scheduler", e.Data["component"])
	assert.Equal(t, "sla-engine", e.Data["service"])
}
