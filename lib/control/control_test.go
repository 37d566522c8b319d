// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/hermeskit/skillhost/lib/codec"
	"github.com/hermeskit/skillhost/lib/testutil"
)

// sendRequest connects to a Unix socket, sends a CBOR request, and
// returns the decoded response envelope.
func sendRequest(t *testing.T, socketPath string, request any) Response {
	t.Helper()

	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to socket: %v", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		t.Fatalf("writing request: %v", err)
	}

	// Signal that we're done writing (half-close). CBOR is self-
	// delimiting so this isn't required by the protocol, but it's
	// good hygiene.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return response
}

// decodeData unmarshals the Data field of a response into the given
// target. Fails the test if decoding fails.
func decodeData(t *testing.T, response Response, target any) {
	t.Helper()
	if len(response.Data) == 0 {
		t.Fatal("response has no data to decode")
	}
	if err := codec.Unmarshal(response.Data, target); err != nil {
		t.Fatalf("decoding response data: %v", err)
	}
}

func testSocketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(testutil.SocketDir(t), "control.sock")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// waitForSocket polls until the socket file exists. Bounded by the
// test context timeout (no wall-clock access).
func waitForSocket(t *testing.T, path string) {
	t.Helper()
	for {
		if _, err := os.Stat(path); err == nil {
			return
		}
		if t.Context().Err() != nil {
			t.Fatalf("socket %s did not appear before test context expired", path)
		}
		runtime.Gosched()
	}
}

func TestServerStatusAction(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewServer(socketPath, testLogger())

	server.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
		return &StatusReport{
			PID:             4242,
			SiteID:          "default",
			BrokerConnected: true,
			Skills: []SkillReport{
				{Name: "weather", State: "running", Port: 15000, OpenSessions: 1},
			},
		}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var serveErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		serveErr = server.Serve(ctx)
	}()

	waitForSocket(t, socketPath)

	response := sendRequest(t, socketPath, map[string]string{"action": "status"})

	if !response.OK {
		t.Errorf("expected ok=true, got false (error: %s)", response.Error)
	}

	var report StatusReport
	decodeData(t, response, &report)
	if report.PID != 4242 {
		t.Errorf("PID = %d, want 4242", report.PID)
	}
	if !report.BrokerConnected {
		t.Error("BrokerConnected = false, want true")
	}
	if len(report.Skills) != 1 || report.Skills[0].Name != "weather" {
		t.Errorf("Skills = %+v, want one skill named weather", report.Skills)
	}

	cancel()
	wg.Wait()
	if serveErr != nil {
		t.Errorf("Serve returned error: %v", serveErr)
	}
}

func TestServerUnknownAction(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewServer(socketPath, testLogger())

	server.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()

	waitForSocket(t, socketPath)

	response := sendRequest(t, socketPath, map[string]string{"action": "nonexistent"})

	if response.OK {
		t.Errorf("expected ok=false, got true")
	}
	if response.Error == "" {
		t.Error("expected error message for unknown action")
	}

	cancel()
	wg.Wait()
}

func TestServerMissingAction(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewServer(socketPath, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()

	waitForSocket(t, socketPath)

	response := sendRequest(t, socketPath, map[string]string{"topic": "hermes/test"})

	if response.OK {
		t.Errorf("expected ok=false, got true")
	}
}

func TestServerInvalidCBOR(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewServer(socketPath, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()

	waitForSocket(t, socketPath)

	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	defer conn.Close()

	// Send garbage bytes that aren't valid CBOR.
	conn.Write([]byte{0xff, 0xfe, 0xfd, 0xfc, 0xfb})

	// Half-close so the server sees EOF after our bytes.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if response.OK {
		t.Errorf("expected ok=false for invalid CBOR, got true")
	}
}

func TestServerHandlerError(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewServer(socketPath, testLogger())

	server.Handle("fail", func(ctx context.Context, raw []byte) (any, error) {
		return nil, fmt.Errorf("broker not connected")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()

	waitForSocket(t, socketPath)

	response := sendRequest(t, socketPath, map[string]string{"action": "fail"})

	if response.OK {
		t.Errorf("expected ok=false, got true")
	}
	if response.Error != "broker not connected" {
		t.Errorf("expected error='broker not connected', got %q", response.Error)
	}

	cancel()
	wg.Wait()
}

func TestServerNilResult(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewServer(socketPath, testLogger())

	server.Handle("ping", func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()

	waitForSocket(t, socketPath)

	response := sendRequest(t, socketPath, map[string]string{"action": "ping"})

	if !response.OK {
		t.Errorf("expected ok=true, got false")
	}
	// Should have no data.
	if len(response.Data) != 0 {
		t.Errorf("expected no data in response, got %d bytes", len(response.Data))
	}

	cancel()
	wg.Wait()
}

func TestServerConcurrentRequests(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewServer(socketPath, testLogger())

	server.Handle("echo", func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			Value int `cbor:"value"`
		}
		codec.Unmarshal(raw, &request)
		return map[string]any{"value": request.Value}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var serveWg sync.WaitGroup
	serveWg.Add(1)
	go func() {
		defer serveWg.Done()
		server.Serve(ctx)
	}()

	waitForSocket(t, socketPath)

	const concurrency = 20
	var clientWg sync.WaitGroup
	for i := range concurrency {
		clientWg.Add(1)
		go func() {
			defer clientWg.Done()
			response := sendRequest(t, socketPath, map[string]any{
				"action": "echo",
				"value":  i,
			})
			if !response.OK {
				t.Errorf("request %d: expected ok=true", i)
			}
			var data map[string]any
			decodeData(t, response, &data)
			if data["value"] != uint64(i) {
				t.Errorf("request %d: expected value=%d, got %v", i, i, data["value"])
			}
		}()
	}

	clientWg.Wait()
	cancel()
	serveWg.Wait()
}

func TestServerGracefulShutdown(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewServer(socketPath, testLogger())

	// Handler that blocks until released.
	handlerStarted := make(chan struct{})
	handlerRelease := make(chan struct{})
	server.Handle("slow", func(ctx context.Context, raw []byte) (any, error) {
		close(handlerStarted)
		<-handlerRelease
		return map[string]any{"completed": true}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()

	waitForSocket(t, socketPath)

	// Start a slow request.
	responseChan := make(chan Response, 1)
	go func() {
		responseChan <- sendRequest(t, socketPath, map[string]string{"action": "slow"})
	}()

	// Wait for the handler to start, then release it and cancel.
	<-handlerStarted
	close(handlerRelease)
	cancel()

	// The slow request should still complete.
	response := <-responseChan
	if !response.OK {
		t.Errorf("expected ok=true for in-flight request, got false")
	}

	// Serve should return after the in-flight request completes.
	if err := testutil.RequireReceive(t, serveDone, 5*time.Second, "Serve did not return after cancellation"); err != nil {
		t.Errorf("Serve returned error: %v", err)
	}

	// Socket file should be cleaned up.
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket file not cleaned up after Serve returned")
	}
}

func TestServerDuplicateHandlerPanics(t *testing.T) {
	server := NewServer("/tmp/test.sock", testLogger())
	server.Handle("reload", func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on duplicate handler registration")
		}
	}()

	server.Handle("reload", func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})
}

// --- Client tests ---

// startServer runs the server in the background and returns after the
// socket exists. Cleanup stops the server and waits for Serve to
// return.
func startServer(t *testing.T, server *Server) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	waitForSocket(t, server.socketPath)
}

func TestClientPing(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewServer(socketPath, testLogger())
	server.Handle("ping", func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})
	startServer(t, server)

	client := NewClient(socketPath)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestClientStatus(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewServer(socketPath, testLogger())
	server.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
		return &StatusReport{
			PID:    99,
			SiteID: "kitchen",
			Skills: []SkillReport{
				{Name: "timer", State: "running", Intents: []string{"SetTimer"}},
				{Name: "weather", State: "failed", LastError: "rpc timeout"},
			},
		}, nil
	})
	startServer(t, server)

	client := NewClient(socketPath)
	report, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if report.PID != 99 {
		t.Errorf("PID = %d, want 99", report.PID)
	}
	if report.SiteID != "kitchen" {
		t.Errorf("SiteID = %q, want %q", report.SiteID, "kitchen")
	}
	if len(report.Skills) != 2 {
		t.Fatalf("len(Skills) = %d, want 2", len(report.Skills))
	}
	if report.Skills[1].LastError != "rpc timeout" {
		t.Errorf("Skills[1].LastError = %q, want %q", report.Skills[1].LastError, "rpc timeout")
	}
}

func TestClientReload(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewServer(socketPath, testLogger())
	server.Handle("reload", func(ctx context.Context, raw []byte) (any, error) {
		return &ReloadReport{
			Started: []string{"alarm"},
			Stopped: []string{"weather"},
			Failed:  []ReloadFailure{{Skill: "news", Error: "readiness timeout"}},
		}, nil
	})
	startServer(t, server)

	client := NewClient(socketPath)
	report, err := client.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if len(report.Started) != 1 || report.Started[0] != "alarm" {
		t.Errorf("Started = %v, want [alarm]", report.Started)
	}
	if len(report.Failed) != 1 || report.Failed[0].Skill != "news" {
		t.Errorf("Failed = %+v, want one failure for news", report.Failed)
	}
}

func TestClientPublish(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewServer(socketPath, testLogger())

	received := make(chan PublishRequest, 1)
	server.Handle("publish", func(ctx context.Context, raw []byte) (any, error) {
		var request PublishRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		received <- request
		return nil, nil
	})
	startServer(t, server)

	client := NewClient(socketPath)
	payload := []byte(`{"sessionId":"abc"}`)
	if err := client.Publish(context.Background(), "hermes/dialogueManager/endSession", payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	request := testutil.RequireReceive(t, received, 5*time.Second, "handler never saw the publish")
	if request.Topic != "hermes/dialogueManager/endSession" {
		t.Errorf("Topic = %q, want %q", request.Topic, "hermes/dialogueManager/endSession")
	}
	if string(request.Payload) != string(payload) {
		t.Errorf("Payload = %q, want %q", request.Payload, payload)
	}
}

func TestClientServerError(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewServer(socketPath, testLogger())
	server.Handle("reload", func(ctx context.Context, raw []byte) (any, error) {
		return nil, errors.New("skills directory missing")
	})
	startServer(t, server)

	client := NewClient(socketPath)
	_, err := client.Reload(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}

	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected *ServerError, got %T: %v", err, err)
	}
	if serverErr.Action != "reload" {
		t.Errorf("error action: got %q, want reload", serverErr.Action)
	}
	if serverErr.Message != "skills directory missing" {
		t.Errorf("error message: got %q, want 'skills directory missing'", serverErr.Message)
	}
}

func TestClientConnectionRefused(t *testing.T) {
	// Socket path that doesn't exist.
	client := NewClient("/tmp/nonexistent-skillhost-test.sock")

	err := client.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error for connection refused")
	}

	// Should NOT be a ServerError — it's a connection failure.
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		t.Fatalf("connection failure should not be *ServerError, got %v", serverErr)
	}
}

func TestClientConcurrentCalls(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewServer(socketPath, testLogger())
	server.Handle("echo", func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			Value int `cbor:"value"`
		}
		codec.Unmarshal(raw, &request)
		return map[string]any{"value": request.Value}, nil
	})
	startServer(t, server)

	client := NewClient(socketPath)

	const concurrency = 20
	var wg sync.WaitGroup
	for i := range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var result map[string]any
			err := client.Call(context.Background(), "echo", map[string]any{"value": i}, &result)
			if err != nil {
				t.Errorf("call %d: %v", i, err)
				return
			}
			if result["value"] != uint64(i) {
				t.Errorf("call %d: got value %v, want %d", i, result["value"], i)
			}
		}()
	}
	wg.Wait()
}
