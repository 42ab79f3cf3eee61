package application

import (
	"fmt"
	"net"
	"testing"
	"time"
)

func pickFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen random port failed: %v", err)
	}
	defer func() { _ = ln.Close() }()
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatal("unexpected addr type")
	}
	return addr.Port
}

// memoryDSN names a shared in-memory sqlite database private to one test.
func memoryDSN(prefix string) string {
	return fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", prefix, time.Now().UnixNano())
}

// testStartOptions binds loopback on a free port with a throwaway config dir.
func testStartOptions(t *testing.T, dsn string) StartOptions {
	t.Helper()
	return StartOptions{
		ConfigDir: t.TempDir(),
		DBDSN:     dsn,
		LocalHost: "127.0.0.1",
		LocalPort: pickFreePort(t),
		WebUI:     WebUIOptions{Mode: "dev", DevProxyURL: "http://127.0.0.1:15173"},
	}
}
