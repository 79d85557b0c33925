// File: cmd/crust/main_test.go
package main

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 0, exitCode(context.Canceled))
	assert.Equal(t, 0, exitCode(errors.Join(errors.New("stopping"), context.Canceled)))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestHandlePanic(t *testing.T) {
	t.Cleanup(resetMocks)

	t.Run("writes the panic log", func(t *testing.T) {
		var written []byte
		var path string
		osWriteFile = func(name string, data []byte, perm os.FileMode) error {
			path, written = name, data
			return nil
		}
		code := -1
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("something broke")
		}()

		assert.Equal(t, panicLogFile, path)
		assert.Contains(t, string(written), "panic: something broke")
		assert.Contains(t, string(written), "goroutine")
		assert.Equal(t, 2, code)
	})

	t.Run("falls back to stderr when the log cannot be written", func(t *testing.T) {
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only fs") }
		code := -1
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("again")
		}()
		assert.Equal(t, 2, code)
	})

	t.Run("no panic", func(t *testing.T) {
		osExit = func(int) { t.Fatal("exit must not be called") }
		require.NotPanics(t, func() {
			defer handlePanic()
		})
	})
}

func TestMainExitsWithCommandStatus(t *testing.T) {
	t.Cleanup(func() {
		resetMocks()
		execute = origExecute
	})

	code := -1
	osExit = func(c int) { code = c }
	execute = func(context.Context) error { return errors.New("bad flag") }
	main()
	assert.Equal(t, 1, code)

	execute = func(context.Context) error { return nil }
	main()
	assert.Equal(t, 0, code)
}

var origExecute = execute
