package secure

import (
	"sort"
	"strings"
	"sync"
)

// Env is a set of environment variables whose values are sealed in
// enclaves.
type Env struct {
	mu   sync.Mutex
	vars map[string]*SecureBuffer
}

// NewEnv returns an empty Env.
func NewEnv() *Env {
	return &Env{vars: make(map[string]*SecureBuffer)}
}

// EnvFromMap seals every value of m.
func EnvFromMap(m map[string]string) (*Env, error) {
	env := NewEnv()
	for name, value := range m {
		if err := env.Set(name, value); err != nil {
			env.Destroy()
			return nil, err
		}
	}
	return env, nil
}

// Set seals value under name, replacing any previous value.
func (e *Env) Set(name, value string) error {
	buf, err := NewSecureBuffer([]byte(value))
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if old, ok := e.vars[name]; ok {
		old.Destroy()
	}
	e.vars[name] = buf
	return nil
}

// Names returns the variable names, sorted.
func (e *Env) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.vars))
	for name := range e.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of variables.
func (e *Env) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.vars)
}

// Reveal decrypts one value. Used for --print masking and single-value
// output.
func (e *Env) Reveal(name string) (string, bool, error) {
	e.mu.Lock()
	buf, ok := e.vars[name]
	e.mu.Unlock()
	if !ok {
		return "", false, nil
	}

	locked, err := buf.Open()
	if err != nil {
		return "", true, err
	}
	defer locked.Destroy()
	return string(locked.Bytes()), true, nil
}

// Environ merges the sealed variables over base ("KEY=VALUE" entries) and
// returns the result sorted. Sealed values win over base. The returned func
// destroys the plaintext buffers opened for the merge; Go strings built from
// them cannot be wiped, so call it as soon as the child has started.
func (e *Env) Environ(base []string) ([]string, func(), error) {
	merged := make(map[string]string, len(base)+e.Len())
	for _, kv := range base {
		if name, value, ok := strings.Cut(kv, "="); ok {
			merged[name] = value
		}
	}

	var opened []interface{ Destroy() }
	wipe := func() {
		for _, b := range opened {
			b.Destroy()
		}
	}

	e.mu.Lock()
	for name, buf := range e.vars {
		locked, err := buf.Open()
		if err != nil {
			e.mu.Unlock()
			wipe()
			return nil, func() {}, err
		}
		opened = append(opened, locked)
		merged[name] = string(locked.Bytes())
	}
	e.mu.Unlock()

	environ := make([]string, 0, len(merged))
	for name, value := range merged {
		environ = append(environ, name+"="+value)
	}
	sort.Strings(environ)
	return environ, wipe, nil
}

// Destroy drops every enclave.
func (e *Env) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, buf := range e.vars {
		buf.Destroy()
	}
	e.vars = make(map[string]*SecureBuffer)
}
