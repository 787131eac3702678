package apphost

import "testing"

func TestLifecycleStartTransitions(t *testing.T) {
	l := NewLifecycle("app.a", nil)
	if l.State() != Created {
		t.Fatalf("expected Created, got %s", l.State())
	}
	if err := l.Transition(Starting, Created); err != nil {
		t.Fatalf("Created->Starting: %v", err)
	}
	if err := l.Transition(Running, Starting); err != nil {
		t.Fatalf("Starting->Running: %v", err)
	}
	if l.State() != Running {
		t.Fatalf("expected Running, got %s", l.State())
	}
}

func TestLifecycleIllegalTransitionRejected(t *testing.T) {
	l := NewLifecycle("app.b", nil)
	if err := l.Transition(Running, Starting); err == nil {
		t.Fatal("Created->Running directly must be rejected")
	}
}

func TestLifecycleFaultFromAnyNonTerminalState(t *testing.T) {
	l := NewLifecycle("app.c", nil)
	l.Transition(Starting, Created)
	if err := l.Transition(Faulted); err != nil {
		t.Fatalf("Starting->Faulted should always be legal: %v", err)
	}
	if l.State() != Faulted {
		t.Fatalf("expected Faulted, got %s", l.State())
	}
}

func TestLifecycleCannotFaultFromTerminal(t *testing.T) {
	l := NewLifecycle("app.d", nil)
	l.Transition(Starting, Created)
	l.Transition(Faulted)
	if err := l.Transition(Faulted); err == nil {
		t.Fatal("faulting an already-terminal host must be rejected")
	}
}

func TestMarkExitedDeliversOnce(t *testing.T) {
	l := NewLifecycle("app.e", nil)
	l.Transition(Starting, Created)
	l.Transition(Running, Starting)

	l.MarkExited(ExitInfo{AppID: "app.e", ExitCode: 0})
	l.MarkExited(ExitInfo{AppID: "app.e", ExitCode: 99}) // must be a no-op

	info, ok := <-l.Exited()
	if !ok || info.ExitCode != 0 {
		t.Fatalf("expected the first ExitInfo to win, got %+v ok=%v", info, ok)
	}
	if _, ok := <-l.Exited(); ok {
		t.Fatal("Exited channel must close after the single delivery")
	}
	if l.State() != Stopped {
		t.Fatalf("normal exit must settle to Stopped, got %s", l.State())
	}
}

func TestMarkExitedWithExceptionFaults(t *testing.T) {
	l := NewLifecycle("app.f", nil)
	l.Transition(Starting, Created)
	l.Transition(Running, Starting)
	l.MarkExited(ExitInfo{AppID: "app.f", ExitCode: 1, Exception: "panic"})
	if l.State() != Faulted {
		t.Fatalf("exit with an exception must settle to Faulted, got %s", l.State())
	}
}

func TestDisposeIsIdempotent(t *testing.T) {
	calls := 0
	l := NewLifecycle("app.g", func() error { return nil })
	l.Transition(Starting, Created)
	l.Transition(Running, Starting)

	disposeFn := func() error { calls++; return nil }
	if err := l.Dispose(disposeFn); err != nil {
		t.Fatalf("first dispose: %v", err)
	}
	if err := l.Dispose(disposeFn); err != nil {
		t.Fatalf("second dispose: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected disposeFn to run exactly once, ran %d times", calls)
	}
}
