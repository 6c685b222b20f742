package main

import (
	"bytes"
	"slices"
	"strings"
	"testing"
)

func TestParseLatencies(t *testing.T) {
	t.Parallel()

	got, err := parseLatencies(" 0, 256,,1024 ")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []int{0, 256, 1024}) {
		t.Fatalf("latencies = %v", got)
	}
	for _, bad := range []string{"x", "-1", "1,two"} {
		if _, err := parseLatencies(bad); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}

func TestRunPrintsEveryRoute(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer
	if err := run([]string{"-tracks", "2", "-latency", "0,300", "-aux", "-xml"}, &out, &errOut); err != nil {
		t.Fatalf("run: %v (%s)", err, errOut.String())
	}
	text := out.String()
	for _, want := range []string{"Master (master)", "FX (bus)", "Track 1 (track)", "Track 2 (track)", "Outboard", "<Session"} {
		if !strings.Contains(text, want) {
			t.Errorf("output lacks %q", want)
		}
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer
	if err := run([]string{"-tracks", "0"}, &out, &errOut); err == nil {
		t.Fatal("zero tracks accepted")
	}
	if err := run([]string{"-latency", "soon"}, &out, &errOut); err == nil {
		t.Fatal("bad latency accepted")
	}
}
