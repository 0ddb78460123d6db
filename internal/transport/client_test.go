package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"logflow/pkg/config"
	"logflow/pkg/retry"
)

func testPolicy() retry.Policy {
	return retry.NewPolicy(config.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		BackoffMultiplier: 2,
	})
}

func TestClient_SendDialsOnFirstUse(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer lis.Close()

	received := make(chan []byte, 4)
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				scanner := NewFrameScanner(c)
				for scanner.Scan() {
					frame := make([]byte, len(scanner.Bytes()))
					copy(frame, scanner.Bytes())
					received <- frame
				}
			}(conn)
		}
	}()

	client := NewClient(lis.Addr().String(), testPolicy())
	defer client.Close()

	ctx := context.Background()
	if err := client.Send(ctx, []byte("frame-one")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case frame := <-received:
		if string(frame) != "frame-one" {
			t.Errorf("received = %q, want %q", frame, "frame-one")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive frame")
	}
}

func TestClient_SendFailsWhenServerUnreachable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := lis.Addr().String()
	_ = lis.Close() // nothing listens on addr now

	client := NewClient(addr, testPolicy())
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := client.Send(ctx, []byte("x")); err == nil {
		t.Error("expected Send() to fail against an unreachable server")
	}
}
