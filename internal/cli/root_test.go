package cli

import "testing"

func TestVersionNotEmpty(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestExecuteVersion(t *testing.T) {
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"run", "pull", "status", "channels", "init", "doctor", "version"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
	if rootCmd.PersistentFlags().Lookup("config-dir") == nil {
		t.Error("--config-dir flag missing")
	}
}
