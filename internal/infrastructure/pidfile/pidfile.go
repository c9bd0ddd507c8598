package pidfile

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is returned by Acquire when a live process owns the file
type ErrAlreadyRunning struct {
	Owner Owner
}

func (e *ErrAlreadyRunning) Error() string {
	if e.Owner.RunID != "" {
		return fmt.Sprintf("factory is already running (PID %d, run %s)", e.Owner.PID, e.Owner.RunID)
	}
	return fmt.Sprintf("factory is already running (PID %d)", e.Owner.PID)
}

// Owner is what a PID file records: the process and the run it is executing
type Owner struct {
	PID   int
	RunID string
}

// PIDFile enforces a single factory run per PID file path
type PIDFile struct {
	path string
}

// New creates a new PIDFile manager
func New(path string) *PIDFile {
	return &PIDFile{path: path}
}

func (p *PIDFile) Path() string { return p.path }

// Acquire writes the current process and run id to the file.
// A file left by a dead process, or an unreadable one, is replaced.
func (p *PIDFile) Acquire(runID string) error {
	owner, err := p.Read()
	switch {
	case err == nil:
		if isProcessRunning(owner.PID) {
			return &ErrAlreadyRunning{Owner: owner}
		}
		_ = os.Remove(p.path)
	case errors.Is(err, os.ErrNotExist):
	default:
		// Invalid PID file
		_ = os.Remove(p.path)
	}

	data := fmt.Sprintf("%d\n%s\n", os.Getpid(), runID)
	if err := os.WriteFile(p.path, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	return nil
}

// Read returns the recorded owner. The run id line is optional.
func (p *PIDFile) Read() (Owner, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return Owner{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return Owner{}, fmt.Errorf("empty PID file %s", p.path)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil || pid <= 0 {
		return Owner{}, fmt.Errorf("invalid PID in %s", p.path)
	}

	owner := Owner{PID: pid}
	if scanner.Scan() {
		owner.RunID = strings.TrimSpace(scanner.Text())
	}
	return owner, nil
}

// Running returns the owner when its process is still alive
func (p *PIDFile) Running() (Owner, bool) {
	owner, err := p.Read()
	if err != nil {
		return Owner{}, false
	}
	return owner, isProcessRunning(owner.PID)
}

// Release removes the PID file
func (p *PIDFile) Release() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// isProcessRunning sends signal 0, which checks existence without signalling
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	// EPERM: exists but owned by someone else
	return errors.Is(err, syscall.EPERM)
}
