package progress

import (
	"bytes"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"
)

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestRelevantSpeed(t *testing.T) {
	sec := time.Second
	cases := []struct {
		samples []Sample
		window  time.Duration
		expect  float64
	}{
		{nil, sec, 0},
		{[]Sample{{100, 0}}, sec, 0},
		{[]Sample{{100, sec}}, 10 * sec, 100},
		{[]Sample{{100, sec}, {300, sec}}, 10 * sec, 200},
		// the oldest sample straddles the window: half of it counts
		{[]Sample{{1000, 2 * sec}, {300, sec}}, 2 * sec, 400},
		// samples beyond the window are ignored
		{[]Sample{{9999, sec}, {100, sec}}, sec, 100},
	}
	for i, c := range cases {
		got := RelevantSpeed(c.samples, c.window)
		tassert(t, near(got, c.expect), "case %d: expected %v got %v", i, c.expect, got)
	}
}

func TestTracker(t *testing.T) {
	clock := time.Unix(0, 0)
	now := func() time.Time { return clock }
	tr := newTracker(1000, 2*time.Second, now)

	clock = clock.Add(time.Second)
	tr.Add(100)
	clock = clock.Add(time.Second)
	tr.Add(300)
	tassert(t, near(tr.Speed(), 200), "speed %v", tr.Speed())

	clock = clock.Add(time.Second)
	tr.Add(500)
	// window holds the last two seconds: 300 + 500
	tassert(t, near(tr.Speed(), 400), "speed %v", tr.Speed())
	tassert(t, tr.Done() == 900, "done %d", tr.Done())
	tassert(t, near(tr.Percent(), 90), "percent %v", tr.Percent())
	tassert(t, len(tr.samples) <= 3, "samples not trimmed: %d", len(tr.samples))
}

func TestTrackerConcurrent(t *testing.T) {
	tr := NewTracker(0, time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Add(1)
			}
		}()
	}
	wg.Wait()
	tassert(t, tr.Done() == 5000, "done %d", tr.Done())
}

func TestReaderWriter(t *testing.T) {
	tr := NewTracker(10, time.Second)
	rd := NewReader(strings.NewReader("0123456789"), tr)
	var buf bytes.Buffer
	_, err := io.Copy(NewWriter(&buf, Nop), rd)
	tassert(t, err == nil, "%v", err)
	tassert(t, tr.Done() == 10, "done %d", tr.Done())
	tassert(t, buf.String() == "0123456789", "buf %q", buf.String())
}
