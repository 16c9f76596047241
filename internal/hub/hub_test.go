package hub

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	h := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, srv
}

// connect opens an SSE stream and returns a line channel fed by a
// background reader
func connect(t *testing.T, url string) (<-chan string, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	lines := make(chan string, 16)
	go func() {
		defer resp.Body.Close()
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				lines <- line
			}
		}
	}()
	return lines, cancel
}

func awaitLine(t *testing.T, lines <-chan string, want string) string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed while waiting for %q", want)
			}
			if strings.Contains(line, want) {
				return line
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func waitForClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", h.ClientCount(), want)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestBroadcastReachesClient(t *testing.T) {
	h, srv := startHub(t)

	lines, stop := connect(t, srv.URL)
	defer stop()

	awaitLine(t, lines, ": connected")
	waitForClients(t, h, 1)

	h.Broadcast(map[string]string{"type": "topology_updated"})

	line := awaitLine(t, lines, "data: ")
	if !strings.Contains(line, `"type":"topology_updated"`) {
		t.Errorf("event line = %q", line)
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	h, srv := startHub(t)

	first, stopFirst := connect(t, srv.URL)
	defer stopFirst()
	second, stopSecond := connect(t, srv.URL)
	defer stopSecond()

	awaitLine(t, first, ": connected")
	awaitLine(t, second, ": connected")
	waitForClients(t, h, 2)

	h.Broadcast(map[string]int{"revision": 7})

	awaitLine(t, first, `"revision":7`)
	awaitLine(t, second, `"revision":7`)
}

func TestDisconnectUnregisters(t *testing.T) {
	h, srv := startHub(t)

	lines, stop := connect(t, srv.URL)
	awaitLine(t, lines, ": connected")
	waitForClients(t, h, 1)

	stop()
	waitForClients(t, h, 0)
}

func TestShutdownClosesStreams(t *testing.T) {
	h := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(h)
	defer srv.Close()

	lines, stop := connect(t, srv.URL)
	defer stop()
	awaitLine(t, lines, ": connected")
	waitForClients(t, h, 1)

	cancel()

	// The client channel is closed by shutdown, ending the stream
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after shutdown")
		}
	}
}
