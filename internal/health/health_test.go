package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	err   error
	delay time.Duration
}

func (p stubPinger) Ping(ctx context.Context) error {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	return p.err
}

func TestPingCheck(t *testing.T) {
	healthy := &PingCheck{CheckName: "db", Target: stubPinger{}}
	res := healthy.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)

	failing := &PingCheck{CheckName: "db", Target: stubPinger{err: errors.New("refused")}}
	res = failing.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "refused", res.Message)

	slow := &PingCheck{CheckName: "db", Target: stubPinger{delay: 20 * time.Millisecond}, SlowAfter: time.Millisecond}
	res = slow.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
}

func TestCheckerRunsAllChecks(t *testing.T) {
	c := NewChecker()
	c.Register(&PingCheck{CheckName: "db", Target: stubPinger{}})
	c.Register(&PingCheck{CheckName: "kafka", Target: stubPinger{err: errors.New("down")}})

	results := c.Check(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusHealthy, results["db"].Status)
	assert.Equal(t, StatusUnhealthy, results["kafka"].Status)
}

func TestOverall(t *testing.T) {
	c := NewChecker()

	assert.Equal(t, StatusHealthy, c.Overall(map[string]Result{
		"a": {Status: StatusHealthy},
	}))
	assert.Equal(t, StatusDegraded, c.Overall(map[string]Result{
		"a": {Status: StatusHealthy},
		"b": {Status: StatusDegraded},
	}))
	assert.Equal(t, StatusUnhealthy, c.Overall(map[string]Result{
		"a": {Status: StatusDegraded},
		"b": {Status: StatusUnhealthy},
	}))
	assert.Equal(t, StatusHealthy, c.Overall(nil))
}
