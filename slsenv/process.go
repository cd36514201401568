package slsenv

import (
	"os"
	"strings"
	"sync"
)

// Env is a process environment variables can be merged onto.
type Env interface {
	Getenv(key string) string
	Merge(vars map[string]string) error
	Environ() map[string]string
}

// Process is the sandbox process environment. It starts as a copy of the
// OS environment and is never written back to it.
type Process struct {
	mu  sync.RWMutex
	env map[string]string
}

// NewProcess snapshots the current OS environment.
func NewProcess() *Process {
	p := &Process{env: make(map[string]string)}
	for _, kv := range os.Environ() {
		if i := strings.Index(kv, "="); i > 0 {
			p.env[kv[:i]] = kv[i+1:]
		}
	}
	return p
}

// Getenv returns the value of key, or "" when unset.
func (p *Process) Getenv(key string) string {
	v, _ := p.LookupEnv(key)
	return v
}

// LookupEnv returns the value of key and whether it is set.
func (p *Process) LookupEnv(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.env[key]
	return v, ok
}

// Setenv sets key to value.
func (p *Process) Setenv(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.env[key] = value
}

// Merge assigns every entry of vars. It never fails.
func (p *Process) Merge(vars map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range vars {
		p.env[k] = v
	}
	return nil
}

// Environ returns a copy of the environment.
func (p *Process) Environ() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyEnv(p.env)
}

// osEnv is the real process environment.
type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func (osEnv) Merge(vars map[string]string) error {
	var first error
	for k, v := range vars {
		if err := os.Setenv(k, v); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (osEnv) Environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.Index(kv, "="); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
