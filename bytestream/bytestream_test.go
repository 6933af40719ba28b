package bytestream

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"
)

func TestByteStreamCapacity(t *testing.T) {
	bs := New(8)
	if n := bs.Push([]byte("hello")); n != 5 {
		t.Fatalf("push: got %d; want 5", n)
	}
	if n := bs.Push([]byte("world")); n != 3 {
		t.Fatalf("push over capacity: got %d; want 3", n)
	}
	if got := bs.AvailableCapacity(); got != 0 {
		t.Errorf("available=%d; want 0", got)
	}
	if got := bs.BytesPushed(); got != 8 {
		t.Errorf("pushed=%d; want 8", got)
	}
	if n := bs.Push([]byte("x")); n != 0 {
		t.Errorf("push on full stream accepted %d bytes", n)
	}
	if got := string(bs.Peek()); got != "hello" {
		t.Errorf("peek=%q; want front chunk %q", got, "hello")
	}
	bs.Pop(3)
	if got := string(bs.Peek()); got != "lo" {
		t.Errorf("peek after partial pop=%q; want %q", got, "lo")
	}
	if got := bs.AvailableCapacity(); got != 3 {
		t.Errorf("available=%d; want 3", got)
	}
	bs.Pop(4)
	if got := string(bs.Peek()); got != "r" {
		t.Errorf("peek across chunks=%q; want %q", got, "r")
	}
	if bs.BytesPopped() != 7 || bs.BytesBuffered() != 1 {
		t.Errorf("popped=%d buffered=%d; want 7 and 1", bs.BytesPopped(), bs.BytesBuffered())
	}
	bs.Pop(100) // Clamped.
	if bs.BytesBuffered() != 0 || bs.BytesPopped() != 8 || bs.Peek() != nil {
		t.Errorf("pop clamp failed: buffered=%d popped=%d", bs.BytesBuffered(), bs.BytesPopped())
	}
}

func TestByteStreamFinish(t *testing.T) {
	bs := New(16)
	bs.Push([]byte("abc"))
	bs.Close()
	if !bs.IsClosed() || bs.IsFinished() {
		t.Fatal("closed stream with buffered data must not be finished")
	}
	if n := bs.Push([]byte("d")); n != 0 {
		t.Error("push after close accepted data")
	}
	var buf [8]byte
	n, err := bs.Read(buf[:])
	if err != nil || string(buf[:n]) != "abc" {
		t.Fatalf("read: %q, %v", buf[:n], err)
	}
	if !bs.IsFinished() {
		t.Error("expected finished stream")
	}
	_, err = bs.Read(buf[:])
	if err != io.EOF {
		t.Errorf("read after finish: got %v; want io.EOF", err)
	}
	_, err = bs.Write([]byte("x"))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("write after close: got %v; want ErrClosed", err)
	}
}

func TestByteStreamError(t *testing.T) {
	bs := New(4)
	bs.SetError()
	if !bs.HasError() {
		t.Fatal("expected error flag")
	}
	if n := bs.Push([]byte("a")); n != 0 {
		t.Error("push on errored stream accepted data")
	}
	if _, err := bs.Read(make([]byte, 1)); !errors.Is(err, ErrStreamError) {
		t.Errorf("read: got %v; want ErrStreamError", err)
	}
}

func TestByteStreamShortWrite(t *testing.T) {
	bs := New(4)
	n, err := bs.Write([]byte("abcdef"))
	if n != 4 || err != io.ErrShortWrite {
		t.Errorf("got n=%d err=%v; want 4 and io.ErrShortWrite", n, err)
	}
}

func TestByteStreamRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const capacity = 64
	bs := New(capacity)
	var want, got bytes.Buffer
	for i := 0; i < 2000; i++ {
		if rng.Intn(2) == 0 {
			data := make([]byte, rng.Intn(capacity))
			rng.Read(data)
			n := bs.Push(data)
			want.Write(data[:n])
		} else {
			peek := bs.Peek()
			n := rng.Intn(len(peek) + 1)
			got.Write(peek[:n])
			bs.Pop(uint64(n))
		}
		if bs.BytesPushed()-bs.BytesPopped() != bs.BytesBuffered() {
			t.Fatalf("iter %d: pushed-popped != buffered", i)
		}
		if bs.BytesBuffered() > capacity {
			t.Fatalf("iter %d: buffered %d exceeds capacity", i, bs.BytesBuffered())
		}
	}
	bs.Close()
	io.Copy(&got, bs)
	if !bytes.Equal(want.Bytes(), got.Bytes()) {
		t.Fatal("data read back does not match data pushed")
	}
}
