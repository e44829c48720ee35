package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func TestFramesOverTCP(t *testing.T) {
	ln, err := Listen(ProtoTCP, "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	client, err := Dial(ProtoTCP, ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	server, ok := <-accepted
	if !ok {
		t.Fatal("accept failed")
	}
	defer server.Close()

	payloads := [][]byte{[]byte("hello"), {}, bytes.Repeat([]byte{7}, 5000)}
	for _, p := range payloads {
		if err := WriteFrame(client, p, time.Second); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = server.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i, want := range payloads {
		got, err := ReadFrame(server)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d: got %d bytes want %d", i, len(got), len(want))
		}
	}
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint32(MaxFrameSize+1))
	if _, err := ReadFrame(&buf); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err = %v", err)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint32(10))
	buf.WriteString("abc")
	if _, err := ReadFrame(&buf); err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want wrapped unexpected EOF", err)
	}
	if _, err := ReadFrame(&bytes.Buffer{}); !errors.Is(err, io.EOF) {
		t.Fatalf("empty reader: %v", err)
	}
}

func TestUnknownProto(t *testing.T) {
	if _, err := Listen("quic", "127.0.0.1:0"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := Dial("quic", "127.0.0.1:1", time.Second); err == nil {
		t.Fatal("expected error")
	}
}

func TestWriteFrameRejectsOversize(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	if err := WriteFrame(a, make([]byte, MaxFrameSize+1), 0); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err = %v", err)
	}
}
