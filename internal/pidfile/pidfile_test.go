package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestWriteReadAlive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "slumber.pid")
	if err := Write(path, os.Getpid()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	pid, start, err := Read(path)
	if err != nil || pid != os.Getpid() {
		t.Fatalf("Read = %d, %v", pid, err)
	}
	if start <= 0 {
		t.Logf("start time unavailable on this platform")
	}
	alive, owner, err := Alive(path)
	if err != nil || !alive || owner != os.Getpid() {
		t.Fatalf("Alive = %v %d %v", alive, owner, err)
	}
}

func TestAliveMissingAndGarbage(t *testing.T) {
	dir := t.TempDir()
	alive, _, err := Alive(filepath.Join(dir, "none.pid"))
	if err != nil || alive {
		t.Fatalf("missing file: %v %v", alive, err)
	}

	bad := filepath.Join(dir, "bad.pid")
	if err := os.WriteFile(bad, []byte("not-a-pid\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Alive(bad); err == nil {
		t.Fatal("garbage pid should fail")
	}
}

func TestAliveDetectsReusedPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reused.pid")
	body := strconv.Itoa(os.Getpid()) + "\n{\"start_unix\":1}\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	if startUnix(os.Getpid()) == 0 {
		t.Skip("process start time unavailable")
	}
	alive, _, err := Alive(path)
	if err != nil || alive {
		t.Fatalf("mismatched start time must not count as alive: %v %v", alive, err)
	}
}

func TestClaim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slumber.pid")

	// the test process stands in for a running daemon
	if err := Write(path, os.Getpid()); err != nil {
		t.Fatal(err)
	}
	if err := Claim(path, os.Getpid()+1); !errors.Is(err, ErrRunning) {
		t.Fatalf("expected ErrRunning, got %v", err)
	}
	// the owner may re-claim its own file
	if err := Claim(path, os.Getpid()); err != nil {
		t.Fatalf("self claim: %v", err)
	}

	// stale file is taken over
	if err := os.WriteFile(path, []byte("999999999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := Claim(path, os.Getpid()); err != nil {
		t.Fatalf("stale claim: %v", err)
	}

	if err := Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := Remove(path); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if err := Remove(""); err != nil {
		t.Fatal(err)
	}
}
