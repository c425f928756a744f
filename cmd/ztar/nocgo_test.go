package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// TestBuildWithCGODisabled ensures the ztar command builds with CGO disabled,
// which verifies there is no CGo linkage dependency.
func TestBuildWithCGODisabled(t *testing.T) {
	pkgDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	cmd := exec.Command("go", "build", "-o", os.DevNull, ".")
	cmd.Dir = pkgDir
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("build failed with CGO disabled in %s: %v", filepath.Base(pkgDir), err)
	}
}
