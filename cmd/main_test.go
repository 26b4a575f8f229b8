package main

import (
	"os"
	"os/exec"
	"testing"
)

var originalArg0 string = os.Args[0]

func setArgs(args ...string) {
	os.Args = append([]string{originalArg0}, args...)
}

func TestMainValidArgs(t *testing.T) {
	if os.Getenv("SPAWN_EXEC_TEST") == "1" {
		setArgs("-h")
		main()
		return
	}

	// wrap run to intercept os.Exit
	cmd := exec.Command(os.Args[0], "-test.run=TestMainValidArgs")
	cmd.Env = append(os.Environ(), "SPAWN_EXEC_TEST=1")
	err := cmd.Run()
	if e, ok := err.(*exec.ExitError); ok && !e.Success() {
		t.Fatalf("Running with valid arg (-h) but got invalid exit code: %v", e)
		return
	}
}

func TestMainInvalidArgs(t *testing.T) {
	if os.Getenv("SPAWN_EXEC_TEST") == "1" {
		setArgs("harryTEST")
		main()
		return
	}

	// wrap run to intercept os.Exit
	cmd := exec.Command(os.Args[0], "-test.run=TestMainInvalidArgs")
	cmd.Env = append(os.Environ(), "SPAWN_EXEC_TEST=1")
	err := cmd.Run()
	if e, ok := err.(*exec.ExitError); ok && !e.Success() {
		return
	}

	t.Fatal("Running with invalid args but got successful exit")
}

func TestMainInvalidErrorCode(t *testing.T) {
	if os.Getenv("SPAWN_EXEC_TEST") == "1" {
		setArgs("--log", "--state-dir", t.TempDir(), "--efivars", t.TempDir(), "set-error", "no-such-code")
		main()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestMainInvalidErrorCode")
	cmd.Env = append(os.Environ(), "SPAWN_EXEC_TEST=1")
	err := cmd.Run()
	if e, ok := err.(*exec.ExitError); ok && !e.Success() {
		return
	}

	t.Fatal("Running with an unknown error code but got successful exit")
}
