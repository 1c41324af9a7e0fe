package image

import "strings"

// fakeRunner records every command and delegates behavior to optional
// hooks, standing in for the executor in tests.
type fakeRunner struct {
	calls [][]string

	onRun         func(name string, args []string) error
	onOutput      func(name string, args []string) (string, error)
	onInteractive func(name string, args []string) (int, error)
}

func (f *fakeRunner) record(name string, args []string) {
	f.calls = append(f.calls, append([]string{name}, args...))
}

func (f *fakeRunner) Run(name string, args ...string) error {
	f.record(name, args)
	if f.onRun != nil {
		return f.onRun(name, args)
	}
	return nil
}

func (f *fakeRunner) RunOutput(name string, args ...string) (string, error) {
	f.record(name, args)
	if f.onOutput != nil {
		return f.onOutput(name, args)
	}
	return "", nil
}

func (f *fakeRunner) RunInteractive(name string, args ...string) (int, error) {
	f.record(name, args)
	if f.onInteractive != nil {
		return f.onInteractive(name, args)
	}
	return 0, nil
}

// commandLines renders recorded calls for order assertions
func (f *fakeRunner) commandLines() []string {
	lines := make([]string, len(f.calls))
	for i, call := range f.calls {
		lines[i] = strings.Join(call, " ")
	}
	return lines
}
