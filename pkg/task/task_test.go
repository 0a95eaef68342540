package task

import (
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tk := &Task{Description: "write release notes"}
	if err := tk.Validate(); err != nil {
		t.Errorf("valid task rejected: %v", err)
	}

	tk = &Task{Description: "   "}
	if err := tk.Validate(); err != ErrEmptyDescription {
		t.Errorf("expected ErrEmptyDescription, got: %v", err)
	}

	bad := Priority("URGENT")
	tk = &Task{Description: "x", Priority: &bad}
	if err := tk.Validate(); err == nil {
		t.Error("expected error for unknown priority")
	}
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("high")
	if err != nil || p != PriorityHigh {
		t.Errorf("ParsePriority(high) = %v, %v", p, err)
	}
	if _, err := ParsePriority("critical"); err == nil {
		t.Error("expected error for unknown priority")
	}
}

func TestOverdue(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name      string
		deadline  *time.Time
		completed bool
		want      bool
	}{
		{"no deadline", nil, false, false},
		{"future deadline", &future, false, false},
		{"past deadline active", &past, false, true},
		{"past deadline completed", &past, true, false},
	}
	for _, c := range cases {
		tk := &Task{Description: "x", Deadline: c.deadline, Completed: c.completed}
		if got := tk.Overdue(now); got != c.want {
			t.Errorf("%s: Overdue = %v, want %v", c.name, got, c.want)
		}
	}
}
