package cron

import (
	"context"
	"errors"
	"testing"
)

func namedAction(name string, got *string) Action {
	return ActionFunc(func(context.Context, Run) error {
		*got = name
		return nil
	})
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	var got string
	r := NewResolver()
	for _, name := range []string{"reminder:", "reminder:urgent:", "backup", "daily-summary"} {
		if err := r.Register(name, namedAction(name, &got)); err != nil {
			t.Fatalf("Register(%q): %v", name, err)
		}
	}

	tests := []struct {
		name string
		def  Definition
		want string
	}{
		{"exact key", Definition{Key: "backup"}, "backup"},
		{"prefix", Definition{Key: "reminder:42"}, "reminder:"},
		{"longest prefix wins", Definition{Key: "reminder:urgent:7"}, "reminder:urgent:"},
		{"payload action overrides key", Definition{Key: "reminder:1", Payload: map[string]string{PayloadAction: "daily-summary"}}, "daily-summary"},
	}

	for _, tt := range tests {
		a, err := r.Resolve(tt.def)
		if err != nil {
			t.Fatalf("%s: Resolve: %v", tt.name, err)
		}
		got = ""
		_ = a.Run(context.Background(), Run{})
		if got != tt.want {
			t.Errorf("%s: resolved %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestResolver_NoMatch(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	_ = r.Register("reminder:", ActionFunc(func(context.Context, Run) error { return nil }))

	if _, err := r.Resolve(Definition{Key: "reminders"}); !errors.Is(err, ErrNoAction) {
		t.Errorf("unmatched key error = %v, want ErrNoAction", err)
	}
	_, err := r.Resolve(Definition{Key: "reminder:1", Payload: map[string]string{PayloadAction: "missing"}})
	if !errors.Is(err, ErrNoAction) {
		t.Errorf("unknown payload action error = %v, want ErrNoAction", err)
	}
}

func TestResolver_RegisterRejectsDuplicates(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	a := ActionFunc(func(context.Context, Run) error { return nil })
	if err := r.Register("backup", a); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register("backup", a); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if err := r.Register("", a); err == nil {
		t.Error("expected empty name to fail")
	}
	if err := r.Register("x", nil); err == nil {
		t.Error("expected nil action to fail")
	}
}
