package main

import "testing"

func TestRootCommandRegistersSubcommands(t *testing.T) {
	want := map[string]bool{"update": false, "download": false, "install": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %q sub-command to be registered", name)
		}
	}
}

func TestDownloadAndInstallRequireAtLeastOneName(t *testing.T) {
	if err := downloadCmd.Args(downloadCmd, nil); err == nil {
		t.Error("expected download with no args to fail validation")
	}
	if err := installCmd.Args(installCmd, nil); err == nil {
		t.Error("expected install with no args to fail validation")
	}
}
