// File: cmd/serve_test.go
package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestServeCmd(t *testing.T) {
	isolateConfig(t)
	deps := newTestDeps()
	addr := freeAddr(t)

	root := newRootCommand(deps.dependencies())
	root.SetArgs([]string{"serve", "--addr", addr})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	client := &http.Client{Timeout: 5 * time.Second, Transport: &http.Transport{DisableKeepAlives: true}}
	var resp *http.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = client.Post("http://"+addr+"/api/interact", "application/json", strings.NewReader(`{"command":"open example"}`))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.Equal(t, 1, deps.shutdowns)
}

func TestServeCmd_BrowserFailure(t *testing.T) {
	isolateConfig(t)
	deps := newTestDeps()
	deps.launchErr = errors.New("chrome not found")

	_, err := execute(t, newRootCommand(deps.dependencies()), "serve", "--addr", freeAddr(t))
	assert.ErrorContains(t, err, "chrome not found")
}
