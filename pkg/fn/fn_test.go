package fn

import (
	"context"
	"errors"
	"strconv"
	"testing"
)

func TestOkAndErr(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("expected ok")
	}
	v, err := r.Unwrap()
	if v != 42 || err != nil {
		t.Fatalf("expected 42, nil; got %d, %v", v, err)
	}

	e := Err[int](errors.New("fail"))
	if e.IsOk() || !e.IsErr() {
		t.Fatal("expected err")
	}
}

func TestErrfWraps(t *testing.T) {
	base := errors.New("base")
	r := Errf[int]("ctx: %w", base)
	_, err := r.Unwrap()
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped base error, got %v", err)
	}
}

func TestUnwrapOr(t *testing.T) {
	if Ok(1).UnwrapOr(99) != 1 {
		t.Fatal("expected 1")
	}
	if Err[int](errors.New("x")).UnwrapOr(99) != 99 {
		t.Fatal("expected fallback 99")
	}
}

func TestFromPair(t *testing.T) {
	if !FromPair(5, nil).IsOk() {
		t.Fatal("expected ok")
	}
	if !FromPair(0, errors.New("e")).IsErr() {
		t.Fatal("expected err")
	}
}

func TestLiftAndThen(t *testing.T) {
	parse := Lift(func(_ context.Context, s string) (int, error) { return strconv.Atoi(s) })
	double := Lift(func(_ context.Context, n int) (int, error) { return n * 2, nil })

	v, err := Then(parse, double)(context.Background(), "21").Unwrap()
	if err != nil || v != 42 {
		t.Fatalf("expected 42, got %d, %v", v, err)
	}
}

func TestThenShortCircuits(t *testing.T) {
	called := false
	fail := Lift(func(_ context.Context, s string) (int, error) { return 0, errors.New("bad") })
	next := Lift(func(_ context.Context, n int) (int, error) { called = true; return n, nil })

	r := Then(fail, next)(context.Background(), "x")
	if r.IsOk() {
		t.Fatal("expected error")
	}
	if called {
		t.Fatal("second stage should not run")
	}
}

func TestTapStage(t *testing.T) {
	var seen string
	tap := TapStage(func(_ context.Context, s string) { seen = s })
	v, _ := tap(context.Background(), "hello").Unwrap()
	if v != "hello" || seen != "hello" {
		t.Fatalf("expected pass-through, got %q / %q", v, seen)
	}
}

func TestTracedStagePassesResult(t *testing.T) {
	ok := TracedStage("ok", Lift(func(_ context.Context, n int) (int, error) { return n + 1, nil }))
	if v, _ := ok(context.Background(), 1).Unwrap(); v != 2 {
		t.Fatalf("expected 2, got %d", v)
	}

	boom := errors.New("boom")
	bad := TracedStage("bad", Lift(func(_ context.Context, n int) (int, error) { return 0, boom }))
	if _, err := bad(context.Background(), 1).Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
