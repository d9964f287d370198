package focus

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestNoop(t *testing.T) {
	var n Noop
	ctx := context.Background()
	if n.Held() {
		t.Fatal("fresh claim must not be held")
	}
	_ = n.Acquire(ctx)
	_ = n.Acquire(ctx)
	if !n.Held() {
		t.Fatal("expected held")
	}
	_ = n.Release(ctx)
	_ = n.Release(ctx)
	if n.Held() {
		t.Fatal("expected released")
	}
}

func TestCommandIdempotent(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	log := filepath.Join(t.TempDir(), "calls")
	c := NewCommand(
		[]string{"sh", "-c", "echo acquire >> " + log},
		[]string{"sh", "-c", "echo release >> " + log},
	)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := c.Acquire(ctx); err != nil {
			t.Fatalf("acquire: %v", err)
		}
	}
	if !c.Held() {
		t.Fatal("expected held")
	}
	for i := 0; i < 3; i++ {
		if err := c.Release(ctx); err != nil {
			t.Fatalf("release: %v", err)
		}
	}
	b, err := os.ReadFile(log)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Fields(string(b)); len(got) != 2 || got[0] != "acquire" || got[1] != "release" {
		t.Fatalf("expected one acquire and one release, got %v", got)
	}
}

func TestCommandFailures(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false(1) not available")
	}
	c := NewCommand([]string{"false"}, []string{"false"})
	if err := c.Acquire(context.Background()); err == nil {
		t.Fatal("expected acquire error")
	}
	if c.Held() {
		t.Fatal("failed acquire must not mark the claim held")
	}

	c = NewCommand(nil, []string{"false"})
	if err := c.Acquire(context.Background()); err != nil {
		t.Fatalf("empty acquire argv is a no-op: %v", err)
	}
	if err := c.Release(context.Background()); err == nil {
		t.Fatal("expected release error")
	}
	if c.Held() {
		t.Fatal("release must clear the claim even on error")
	}
}
