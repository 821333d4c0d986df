package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{
			name:   "no checks",
			checks: nil,
			want:   StatusUp,
		},
		{
			name: "all up",
			checks: map[string]Check{
				"postgres": PingCheck(func(context.Context) error { return nil }),
			},
			want: StatusUp,
		},
		{
			name: "degraded cache",
			checks: map[string]Check{
				"postgres": PingCheck(func(context.Context) error { return nil }),
				"redis":    DegradedCheck(func(context.Context) error { return errors.New("refused") }),
			},
			want: StatusDegraded,
		},
		{
			name: "down wins",
			checks: map[string]Check{
				"postgres": PingCheck(func(context.Context) error { return errors.New("refused") }),
				"redis":    DegradedCheck(func(context.Context) error { return errors.New("refused") }),
			},
			want: StatusDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Components, len(tt.checks))
		})
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("postgres", PingCheck(func(context.Context) error { return errors.New("down") }))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"postgres"`)
	assert.Equal(t, []string{"postgres"}, c.Names())
}
