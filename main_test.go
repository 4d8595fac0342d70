package main

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func TestRunRequiresRequest(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	err := run(nil, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "-request") {
		t.Errorf("missing -request should be an error, got %v", err)
	}
}

func TestRunVersion(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"-version"}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "reposlice") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRunRejectsBadFlagValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"unknown language", []string{"-request", "req.json", "-language", "go"}},
		{"zero workers", []string{"-request", "req.json", "-workers", "0"}},
		{"zero retries", []string{"-request", "req.json", "-retries", "0"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var stdout, stderr bytes.Buffer
			if err := run(tt.args, &stdout, &stderr); err == nil {
				t.Error("expected a configuration error")
			}
		})
	}
}

func TestReorderArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "flags already first",
			args: []string{"-request", "req.json", "proj"},
			want: []string{"-request", "req.json", "proj"},
		},
		{
			name: "positional before flags",
			args: []string{"proj", "-request", "req.json"},
			want: []string{"-request", "req.json", "proj"},
		},
		{
			name: "value flags keep their values",
			args: []string{"proj", "-call-depth", "2", "-v"},
			want: []string{"-call-depth", "2", "-v", "proj"},
		},
		{
			name: "double dash stops flag parsing",
			args: []string{"-v", "--", "-request"},
			want: []string{"-v", "-request"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := reorderArgs(tt.args)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("reorderArgs(%v) = %v, want %v", tt.args, got, tt.want)
			}
		})
	}
}
