package main

import (
	"bytes"
	"testing"
)

func TestRootCmd_RunFlags(t *testing.T) {
	root := newRootCmd()
	run, _, err := root.Find([]string{"run"})
	if err != nil {
		t.Fatalf("run subcommand missing: %v", err)
	}
	for _, name := range []string{"dev", "config", "addr"} {
		if run.Flags().Lookup(name) == nil {
			t.Errorf("run is missing --%s", name)
		}
	}
}

func TestRootCmd_RunRejectsMissingAPIURL(t *testing.T) {
	t.Setenv("API_URL", "")

	root := newRootCmd()
	var stderr bytes.Buffer
	root.SetErr(&stderr)
	root.SetOut(&stderr)
	root.SetArgs([]string{"run"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected configuration error")
	}
}
