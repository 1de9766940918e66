// Package httpclient builds the resty clients used to reach remote services.
package httpclient

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Config holds the settings of a client. Zero values select the defaults.
type Config struct {
	RetryCount       int           `mapstructure:"retry_count"`
	RetryWaitTime    time.Duration `mapstructure:"retry_wait_time"`
	RetryMaxWaitTime time.Duration `mapstructure:"retry_max_wait_time"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Debug            bool          `mapstructure:"debug"`
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		RetryCount:       3,
		RetryWaitTime:    time.Second,
		RetryMaxWaitTime: 5 * time.Second,
		Timeout:          10 * time.Minute,
	}
}

// New returns a resty client logging through log. Server errors are retried. Unset
// fields of cfg take their default value.
func New(log *slog.Logger, cfg Config) *resty.Client {
	def := DefaultConfig()
	if cfg.RetryCount == 0 {
		cfg.RetryCount = def.RetryCount
	}
	if cfg.RetryWaitTime == 0 {
		cfg.RetryWaitTime = def.RetryWaitTime
	}
	if cfg.RetryMaxWaitTime == 0 {
		cfg.RetryMaxWaitTime = def.RetryMaxWaitTime
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}

	client := resty.New()
	if log != nil {
		client.SetLogger(slogAdapter{log: log})
	}
	return client.
		SetDebug(cfg.Debug).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWaitTime).
		SetRetryMaxWaitTime(cfg.RetryMaxWaitTime).
		SetTimeout(cfg.Timeout).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
}

// slogAdapter forwards resty logs to a slog.Logger.
type slogAdapter struct {
	log *slog.Logger
}

func (a slogAdapter) Errorf(format string, v ...any) {
	a.log.Error(fmt.Sprintf(format, v...))
}

func (a slogAdapter) Warnf(format string, v ...any) {
	a.log.Warn(fmt.Sprintf(format, v...))
}

func (a slogAdapter) Debugf(format string, v ...any) {
	a.log.Debug(fmt.Sprintf(format, v...))
}
