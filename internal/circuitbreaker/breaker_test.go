package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // reduce noise in tests
	return logger
}

var errDispatch = errors.New("supplier unavailable")

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	b := New(Config{Name: "printful", MaxFailures: 3, CoolDown: time.Minute}, testLogger())

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return errDispatch }); !errors.Is(err, errDispatch) {
			t.Fatalf("execute %d returned %v, want dispatch error", i, err)
		}
	}

	if got := b.State(); got != StateOpen {
		t.Fatalf("state after %d failures = %s, want open", 3, got)
	}

	err := b.Execute(func() error {
		t.Fatal("function must not run while breaker is open")
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("execute while open returned %v, want ErrOpen", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New(Config{Name: "eprolo", MaxFailures: 3, CoolDown: time.Minute}, testLogger())

	b.Execute(func() error { return errDispatch })
	b.Execute(func() error { return errDispatch })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return errDispatch })
	b.Execute(func() error { return errDispatch })

	if got := b.State(); got != StateClosed {
		t.Errorf("state = %s, want closed (success should reset the streak)", got)
	}
}

func TestHalfOpenProbeRecovers(t *testing.T) {
	b := New(Config{Name: "zendrop", MaxFailures: 1, CoolDown: 10 * time.Millisecond, MaxProbes: 1}, testLogger())

	b.Execute(func() error { return errDispatch })
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %s, want open", got)
	}

	time.Sleep(20 * time.Millisecond)

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe after cooldown returned %v, want nil", err)
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("state after successful probe = %s, want closed", got)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New(Config{Name: "zendrop", MaxFailures: 1, CoolDown: 10 * time.Millisecond}, testLogger())

	b.Execute(func() error { return errDispatch })
	time.Sleep(20 * time.Millisecond)

	b.Execute(func() error { return errDispatch })
	if got := b.State(); got != StateOpen {
		t.Errorf("state after failed probe = %s, want open", got)
	}
}

func TestMetricsConsistentUnderConcurrency(t *testing.T) {
	b := New(Config{Name: "concurrent", MaxFailures: 1000, CoolDown: time.Minute}, testLogger())

	const goroutines = 50
	const iterations = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				b.Execute(func() error {
					if (id+j)%3 == 0 {
						return errDispatch
					}
					return nil
				})
			}
		}(i)
	}
	wg.Wait()

	metrics := b.Metrics()
	total := metrics["total_requests"].(int64)
	failures := metrics["total_failures"].(int64)
	successes := metrics["total_successes"].(int64)

	if total != failures+successes {
		t.Errorf("inconsistent metrics: total=%d failures=%d successes=%d", total, failures, successes)
	}
	if total != goroutines*iterations {
		t.Errorf("total_requests = %d, want %d", total, goroutines*iterations)
	}
}

func TestManagerReturnsSameBreaker(t *testing.T) {
	m := NewManager(testLogger())

	first := m.GetOrCreate("printful")
	second := m.GetOrCreate("printful")
	other := m.GetOrCreate("eprolo")

	if first != second {
		t.Error("GetOrCreate returned a different breaker for the same name")
	}
	if first == other {
		t.Error("GetOrCreate returned the same breaker for different names")
	}

	metrics := m.AllMetrics()
	if len(metrics) != 2 {
		t.Errorf("AllMetrics has %d entries, want 2", len(metrics))
	}
}
