package main

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	calls   []string
	err     error
	version uint
	forced  int
	steps   int
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	return f.err
}

func (f *fakeMigrator) Down() error {
	f.calls = append(f.calls, "down")
	return f.err
}

func (f *fakeMigrator) Steps(n int) error {
	f.calls = append(f.calls, "steps")
	f.steps = n
	return f.err
}

func (f *fakeMigrator) Version() (uint, bool, error) {
	f.calls = append(f.calls, "version")
	return f.version, false, f.err
}

func (f *fakeMigrator) Force(version int) error {
	f.calls = append(f.calls, "force")
	f.forced = version
	return f.err
}

func TestRunCommands(t *testing.T) {
	tests := []struct {
		command string
		args    []string
	}{
		{"up", nil},
		{"down", nil},
		{"steps", []string{"-1"}},
		{"version", nil},
		{"force", []string{"1"}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			m := &fakeMigrator{}
			require.NoError(t, run(m, tt.command, tt.args))
			assert.Equal(t, []string{tt.command}, m.calls)
		})
	}
}

func TestRunNoChangeIsNotAFailure(t *testing.T) {
	m := &fakeMigrator{err: migrate.ErrNoChange}
	assert.NoError(t, run(m, "up", nil))
	assert.NoError(t, run(m, "down", nil))

	nilVersion := &fakeMigrator{err: migrate.ErrNilVersion}
	assert.NoError(t, run(nilVersion, "version", nil))
}

func TestRunErrors(t *testing.T) {
	boom := errors.New("connection refused")

	assert.ErrorIs(t, run(&fakeMigrator{err: boom}, "up", nil), boom)
	assert.Error(t, run(&fakeMigrator{}, "force", nil))
	assert.Error(t, run(&fakeMigrator{}, "steps", []string{"two"}))
	assert.Error(t, run(&fakeMigrator{}, "sideways", nil))
}

func TestRunParsesNumbers(t *testing.T) {
	m := &fakeMigrator{}
	require.NoError(t, run(m, "force", []string{"3"}))
	assert.Equal(t, 3, m.forced)

	require.NoError(t, run(m, "steps", []string{"2"}))
	assert.Equal(t, 2, m.steps)
}
