package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestObserver_RecordsFirstTokenOnce(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	o := NewObserver(clk.Now)
	o.Start()

	require.Nil(t, o.TimeToFirstToken())
	require.Nil(t, o.TotalTime())

	clk.Advance(120*time.Millisecond + 400*time.Microsecond)
	require.True(t, o.MarkFirstToken())
	clk.Advance(50 * time.Millisecond)
	require.False(t, o.MarkFirstToken())

	require.Equal(t, int64(120), *o.TimeToFirstToken())

	clk.Advance(830 * time.Millisecond)
	o.Finish()
	clk.Advance(time.Second)
	o.Finish()

	require.Equal(t, int64(120), *o.TimeToFirstToken())
	require.Equal(t, int64(1000), *o.TotalTime())
}

func TestObserver_ErrorBeforeAnyToken(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	o := NewObserver(clk.Now)
	o.Start()
	clk.Advance(30 * time.Millisecond)
	o.Finish()

	require.Nil(t, o.TimeToFirstToken())
	require.Equal(t, int64(30), *o.TotalTime())
	require.False(t, o.MarkFirstToken(), "no first token after the cycle finished")
}

func TestObserver_RoundingNeverInvertsOrder(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	o := NewObserver(clk.Now)
	o.Start()
	clk.Advance(10*time.Millisecond + 600*time.Microsecond)
	o.MarkFirstToken()
	o.Finish()

	require.LessOrEqual(t, *o.TimeToFirstToken(), *o.TotalTime())
}

func TestObserver_DefaultsToWallClock(t *testing.T) {
	o := NewObserver(nil)
	o.Start()
	o.MarkFirstToken()
	o.Finish()
	require.NotNil(t, o.TimeToFirstToken())
	require.LessOrEqual(t, *o.TimeToFirstToken(), *o.TotalTime())
}
