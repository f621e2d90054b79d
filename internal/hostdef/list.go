package hostdef

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// listDoc is the on-disk shape of a host list file.
type listDoc struct {
	Hosts []Host `yaml:"hosts"`
}

// List holds a validated, resolved set of hosts loaded from a single
// read of the backing file. rdistcc dispatch is a one-shot process (one
// invocation per compile, exiting once Run returns), so there is no
// long-lived process here to benefit from a hot-reloading watch; each
// invocation simply reloads the current file.
type List struct {
	mu    sync.RWMutex
	hosts []Host
	path  string
}

// LoadList reads and validates a host list from path.
func LoadList(path string) (*List, error) {
	l := &List{path: path}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *List) reload() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("hostdef: read host list %s: %w", l.path, err)
	}
	var doc listDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("hostdef: parse host list %s: %w", l.path, err)
	}
	for i := range doc.Hosts {
		if err := doc.Hosts[i].Resolve(); err != nil {
			return err
		}
	}
	l.mu.Lock()
	l.hosts = doc.Hosts
	l.mu.Unlock()
	return nil
}

// Hosts returns a snapshot of the currently loaded host list.
func (l *List) Hosts() []Host {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Host, len(l.hosts))
	copy(out, l.hosts)
	return out
}

// First returns the first host in the list. Deciding which single host
// to try, and whether to retry against a different one, is the caller's
// job; this package never iterates on its own.
func (l *List) First() (Host, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.hosts) == 0 {
		return Host{}, false
	}
	return l.hosts[0], true
}

// Reload re-reads and re-validates the backing file, replacing the
// current host list on success and leaving it untouched on failure.
// Callers that run across multiple dispatches (tests, or a wrapper that
// batches several invocations in one process) can call this between
// jobs to pick up edits without restarting.
func (l *List) Reload() error {
	return l.reload()
}
