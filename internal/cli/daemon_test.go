package cli

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func TestDaemonStartsAndShutsDown(t *testing.T) {
	tmp := setTestHome(t)

	// Startup fails fast without a provider key, so give it one.
	cfgJSON := `{"providers":{"openai":{"apiKey":"sk-test"}}}`
	if err := os.WriteFile(filepath.Join(tmp, "config.json"), []byte(cfgJSON), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	origNotify, origStop := daemonSignalNotify, daemonSignalStop
	daemonSignalNotify = func(c chan<- os.Signal, sig ...os.Signal) { c <- syscall.SIGTERM }
	daemonSignalStop = func(c chan<- os.Signal) {}
	defer func() {
		daemonSignalNotify = origNotify
		daemonSignalStop = origStop
	}()

	done := make(chan struct{})
	go func() {
		runDaemon(daemonCmd, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("daemon did not shut down after the signal")
	}
}
