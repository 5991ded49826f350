package emergency

import "testing"

func TestCanTransition_Table(t *testing.T) {
	allowed := map[Status][]Status{
		StatusTriage:    {StatusCritical, StatusStable, StatusDeceased},
		StatusCritical:  {StatusStable, StatusRecovered, StatusDeceased},
		StatusStable:    {StatusCritical, StatusRecovered, StatusDischarged, StatusDeceased},
		StatusRecovered: {StatusDischarged, StatusDeceased},
	}
	for _, from := range statuses {
		want := make(map[Status]bool)
		for _, to := range allowed[from] {
			want[to] = true
		}
		for _, to := range statuses {
			if got := CanTransition(from, to); got != want[to] {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want[to])
			}
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range statuses {
		want := s == StatusDeceased || s == StatusDischarged
		if s.Terminal() != want {
			t.Errorf("%s.Terminal() = %v", s, s.Terminal())
		}
		if want && len(transitions[s]) != 0 {
			t.Errorf("terminal %s has outgoing edges", s)
		}
	}
}

func TestStatusForLevel(t *testing.T) {
	want := map[int]Status{1: StatusCritical, 2: StatusCritical, 3: StatusStable, 4: StatusStable, 5: StatusStable}
	for level, st := range want {
		if got := statusForLevel(level); got != st {
			t.Errorf("statusForLevel(%d) = %s, want %s", level, got, st)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if st, ok := ParseStatus("discharged"); !ok || st != StatusDischarged {
		t.Errorf("unexpected %s %v", st, ok)
	}
	if _, ok := ParseStatus("Admitted"); ok {
		t.Error("expected Admitted to be rejected")
	}
}
