package iiod

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
)

// pipeServer runs fn against the server half of a net.Pipe and reports any
// error back on errCh so the test goroutine can fail cleanly.
func pipeServer(t *testing.T, fn func(server net.Conn) error) net.Conn {
	t.Helper()

	client, server := net.Pipe()
	errCh := make(chan error, 1)

	go func() {
		errCh <- fn(server)
		server.Close()
	}()

	t.Cleanup(func() {
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("pipe server: %v", err)
			}
		default:
		}
	})

	return client
}

func TestTextBackendProbeReadsReply(t *testing.T) {
	client := pipeServer(t, func(server net.Conn) error {
		r := bufio.NewReader(server)
		line, err := r.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read command: %w", err)
		}
		if line != "LISTDEVICES\n" {
			return fmt.Errorf("unexpected command %q", line)
		}
		_, err = server.Write([]byte("iio:device0\n"))
		return err
	})

	tb := NewTextBackend(client)
	if err := tb.Probe(context.Background(), client); err != nil {
		t.Fatalf("Probe: %v", err)
	}
}

func TestTextBackendGetXMLContextTrimsLeadingGarbage(t *testing.T) {
	client := pipeServer(t, func(server net.Conn) error {
		r := bufio.NewReader(server)
		if _, err := r.ReadString('\n'); err != nil {
			return err
		}
		if _, err := server.Write([]byte("junk<context/>")); err != nil {
			return err
		}
		return nil
	})

	tb := NewTextBackend(client)
	xml, err := tb.GetXMLContext(context.Background())
	if err != nil {
		t.Fatalf("GetXMLContext: %v", err)
	}
	if string(xml) != "<context/>" {
		t.Fatalf("unexpected xml: %q", xml)
	}
}

func TestTextBackendOpenBufferAppendsCyclicFlag(t *testing.T) {
	var gotCommand string
	client := pipeServer(t, func(server net.Conn) error {
		r := bufio.NewReader(server)
		line, err := r.ReadString('\n')
		if err != nil {
			return err
		}
		gotCommand = line
		_, err = server.Write([]byte("3\n"))
		return err
	})

	tb := NewTextBackend(client)
	id, err := tb.OpenBuffer(context.Background(), "cf-ad9361-lpc", 4096, true)
	if err != nil {
		t.Fatalf("OpenBuffer: %v", err)
	}
	if id != 3 {
		t.Fatalf("unexpected buffer id: %d", id)
	}
	if gotCommand != "BUFFER_OPEN cf-ad9361-lpc 4096 CYCLIC\n" {
		t.Fatalf("unexpected command: %q", gotCommand)
	}
}

func TestTextBackendReadBufferFillsCallerSlice(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	client := pipeServer(t, func(server net.Conn) error {
		r := bufio.NewReader(server)
		if _, err := r.ReadString('\n'); err != nil {
			return err
		}
		if _, err := server.Write(payload); err != nil {
			return err
		}
		_, err := server.Write([]byte("\n"))
		return err
	})

	tb := NewTextBackend(client)
	buf := make([]byte, len(payload))
	n, err := tb.ReadBuffer(context.Background(), 3, buf)
	if err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("unexpected read length: %d", n)
	}
	for i := range payload {
		if buf[i] != payload[i] {
			t.Fatalf("buffer mismatch at %d: got %d want %d", i, buf[i], payload[i])
		}
	}
}

func TestBackendInterfaceConformance(t *testing.T) {
	var _ Backend = (*BinaryBackend)(nil)
	var _ Backend = (*TextBackend)(nil)
}
