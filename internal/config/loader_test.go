package config

import (
	"strings"
	"testing"
)

func TestParse_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("version: \"1\"\nwidget:\n  refresh: hourly\n"))
	if err == nil || !strings.Contains(err.Error(), "refresh") {
		t.Fatalf("error = %v, want unknown field refresh", err)
	}
}

func TestParse_EmptyDocumentGetsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Gateway.Bind != DefaultBind {
		t.Errorf("bind = %q, want default", cfg.Gateway.Bind)
	}
}

func TestSubstitute(t *testing.T) {
	t.Parallel()

	env := map[string]string{"TOKEN": "abc", "EMPTY": ""}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr string
	}{
		{"set", "token: ${TOKEN}\n", "token: abc\n", ""},
		{"set but empty wins over fallback", "token: ${EMPTY:-x}\n", "token: \n", ""},
		{"fallback", "retain: ${RETAIN:-3}\n", "retain: 3\n", ""},
		{"commented out", "# token: ${MISSING}\nversion: \"1\"\n", "# token: ${MISSING}\nversion: \"1\"\n", ""},
		{"trailing comment", "token: ${TOKEN} # was ${OLD}\n", "token: abc # was ${OLD}\n", ""},
		{"hash inside quotes", "topic: \"a#${TOKEN}\"\n", "topic: \"a#abc\"\n", ""},
		{"unset", "version: \"1\"\ntoken: ${MISSING}\n", "", "line 2: variable MISSING is not set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := substitute([]byte(tt.in), lookup)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("substitute: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMarshal_HeaderAndIndent(t *testing.T) {
	t.Parallel()

	cfg := &Config{Version: "1"}
	cfg.Gateway.Auth.BearerToken = "tok"
	out, err := Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	text := string(out)
	if !strings.HasPrefix(text, "# daybook configuration") {
		t.Errorf("missing header:\n%s", text)
	}
	if !strings.Contains(text, "\n  auth:\n    bearer_token: tok\n") {
		t.Errorf("want two-space indent:\n%s", text)
	}
}
