package probe

import (
	"context"
	"net"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Fake is an in-memory board for tests: a map of file contents, a map
// of scripted command outputs, and canned network answers. The zero
// value is an empty system where every probe comes back absent.
type Fake struct {
	// Files maps absolute paths to contents. Presence in the map makes
	// Exists true.
	Files map[string]string
	// Dirs lists paths that exist without contents (device nodes,
	// directories).
	Dirs []string
	// Commands maps "name arg1 arg2..." to scripted output. A missing
	// entry means the command fails.
	Commands map[string]string
	// Hosts maps host names to resolved addresses.
	Hosts map[string][]string
	// NICs is returned from Interfaces.
	NICs []net.Interface
	// Cores is returned from NumCPU.
	Cores int
	// FreeBytes/TotalBytes are returned from Statfs for any path.
	FreeBytes, TotalBytes uint64
	// WriteErrs fails WriteFile for specific paths.
	WriteErrs map[string]error

	// Writes records every successful WriteFile, newest last.
	Writes []Write
}

type Write struct {
	Path string
	Data string
}

var _ Env = (*Fake)(nil)

func (f *Fake) ReadFile(path string) (string, error) {
	content, ok := f.Files[path]
	if !ok {
		return "", errors.Errorf("open %s: no such file or directory", path)
	}
	return strings.TrimSpace(content), nil
}

func (f *Fake) Exists(path string) bool {
	if _, ok := f.Files[path]; ok {
		return true
	}
	for _, dir := range f.Dirs {
		if dir == path {
			return true
		}
	}
	return false
}

func (f *Fake) Glob(pattern string) []string {
	var matches []string
	seen := make(map[string]bool)
	match := func(path string) {
		if ok, _ := filepath.Match(pattern, path); ok && !seen[path] {
			seen[path] = true
			matches = append(matches, path)
		}
	}
	for path := range f.Files {
		match(path)
	}
	for _, path := range f.Dirs {
		match(path)
	}
	sort.Strings(matches)
	return matches
}

func (f *Fake) WriteFile(path, data string) error {
	if err, ok := f.WriteErrs[path]; ok {
		return err
	}
	if f.Files == nil {
		f.Files = make(map[string]string)
	}
	f.Files[path] = data
	f.Writes = append(f.Writes, Write{Path: path, Data: data})
	return nil
}

func (f *Fake) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	key := strings.TrimSpace(name + " " + strings.Join(args, " "))
	out, ok := f.Commands[key]
	if !ok {
		return "", errors.Errorf("command failed: %s", key)
	}
	return out, nil
}

func (f *Fake) LookupHost(ctx context.Context, host string) ([]string, error) {
	addrs, ok := f.Hosts[host]
	if !ok {
		return nil, errors.Errorf("lookup %s: no such host", host)
	}
	return addrs, nil
}

func (f *Fake) Interfaces() ([]net.Interface, error) {
	return f.NICs, nil
}

func (f *Fake) Statfs(path string) (uint64, uint64, error) {
	if f.TotalBytes == 0 {
		return 0, 0, errors.Errorf("statfs %s: no such file or directory", path)
	}
	return f.FreeBytes, f.TotalBytes, nil
}

func (f *Fake) NumCPU() int {
	return f.Cores
}
