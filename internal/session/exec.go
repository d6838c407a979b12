package session

import (
	"fmt"
	"os"
	"os/exec"
)

// runAttached runs argv and waits for it to exit. Used for the editor,
// which owns the terminal until the operator is done.
func runAttached(argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

// runDetached starts argv and releases it. Used for the viewer, which
// outlives the menu interaction.
func runDetached(argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: %w", argv[0], err)
	}

	// Reap the child when it eventually exits so it does not linger as
	// a zombie for the life of the session.
	go func() { _ = cmd.Wait() }()

	return nil
}
