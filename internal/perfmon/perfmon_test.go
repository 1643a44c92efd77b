package perfmon

import (
	"testing"
	"time"
)

func TestPercentilesOfUniformSamples(t *testing.T) {
	m := New()
	for i := 1; i <= 100; i++ {
		m.Observe("op", time.Duration(i)*time.Millisecond)
	}
	p := m.Percentiles("op")
	if p.Max != 100*time.Millisecond {
		t.Errorf("expected max 100ms, got %v", p.Max)
	}
	if p.P50 < 45*time.Millisecond || p.P50 > 55*time.Millisecond {
		t.Errorf("expected p50 near 50ms, got %v", p.P50)
	}
	if p.P95 < 90*time.Millisecond || p.P95 > 100*time.Millisecond {
		t.Errorf("expected p95 near 95ms, got %v", p.P95)
	}
}

func TestPercentilesOfEmptyOpIsZero(t *testing.T) {
	m := New()
	p := m.Percentiles("never-seen")
	if p.P50 != 0 || p.P95 != 0 || p.Max != 0 {
		t.Errorf("expected zero percentiles, got %+v", p)
	}
}

func TestBudgetBreachFiresAtWarningAndCritical(t *testing.T) {
	m := New()
	m.SetBudget("rsi_calc", 10*time.Millisecond)

	var breaches []string
	m.OnBudgetBreach = func(op, level string, actual, budget time.Duration) {
		breaches = append(breaches, level)
	}

	m.Observe("rsi_calc", 5*time.Millisecond) // under budget, no alert
	m.Observe("rsi_calc", 16*time.Millisecond) // >= 1.5x, warning
	m.Observe("rsi_calc", 25*time.Millisecond) // >= 2.0x, critical

	if len(breaches) != 2 {
		t.Fatalf("expected 2 breaches, got %v", breaches)
	}
	if breaches[0] != "warning" || breaches[1] != "critical" {
		t.Errorf("expected [warning critical], got %v", breaches)
	}
}

func TestAlertCooldownSuppressesRepeatedBreaches(t *testing.T) {
	m := New()
	m.SetBudget("op", 10*time.Millisecond)

	count := 0
	m.OnBudgetBreach = func(op, level string, actual, budget time.Duration) {
		count++
	}

	m.Observe("op", 25*time.Millisecond)
	m.Observe("op", 25*time.Millisecond)
	m.Observe("op", 25*time.Millisecond)

	if count != 1 {
		t.Errorf("expected cooldown to suppress repeats within a minute, got %d alerts", count)
	}
}

func TestMeasureRecordsDuration(t *testing.T) {
	m := New()
	result := Measure(m, "work", func() int {
		time.Sleep(time.Millisecond)
		return 42
	})
	if result != 42 {
		t.Errorf("expected 42, got %d", result)
	}
	if m.Percentiles("work").Max == 0 {
		t.Error("expected a recorded sample")
	}
}
