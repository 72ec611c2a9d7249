// Package probe is the platform access surface the peripheral testers
// work through. Testers never touch sysfs paths or spawn diagnostic
// tools directly; they go through an Env, so tests can substitute a
// fake board and a port can substitute ioctl/netlink for shell-outs
// without changing any tester.
package probe

import (
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Env answers bounded, one-shot questions about the running system.
type Env interface {
	// ReadFile returns the file contents with surrounding whitespace
	// trimmed, the way sysfs attributes are consumed.
	ReadFile(path string) (string, error)
	// Exists reports whether the path is present.
	Exists(path string) bool
	// Glob expands a filepath pattern; enumeration failures surface as
	// an empty slice since an unreadable class directory means "no
	// devices" to every caller.
	Glob(pattern string) []string
	// WriteFile writes a sysfs-style attribute value.
	WriteFile(path, data string) error
	// Run executes a diagnostic command with its own hard timeout and
	// returns combined output. Every external invocation is bounded;
	// a hung tool fails the sub-probe instead of stalling the run.
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error)
	// LookupHost resolves a host name.
	LookupHost(ctx context.Context, host string) ([]string, error)
	// Interfaces lists the system network interfaces.
	Interfaces() ([]net.Interface, error)
	// Statfs returns free and total bytes of the filesystem at path.
	Statfs(path string) (free, total uint64, err error)
	// NumCPU returns the number of usable logical cores.
	NumCPU() int
}

// System is the real board.
type System struct{}

var _ Env = System{}

func (System) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (System) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (System) Glob(pattern string) []string {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	return matches
}

func (System) WriteFile(path, data string) error {
	return os.WriteFile(path, []byte(data), 0o644)
}

func (System) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return string(out), errors.Wrapf(err, "running %s", name)
	}
	return string(out), nil
}

func (System) LookupHost(ctx context.Context, host string) ([]string, error) {
	return net.DefaultResolver.LookupHost(ctx, host)
}

func (System) Interfaces() ([]net.Interface, error) {
	return net.Interfaces()
}

func (System) Statfs(path string) (uint64, uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, errors.Wrapf(err, "statfs %s", path)
	}
	bsize := uint64(st.Bsize)
	return st.Bavail * bsize, st.Blocks * bsize, nil
}

func (System) NumCPU() int {
	return runtime.NumCPU()
}
