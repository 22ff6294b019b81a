package serialmux

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTestableSerialPort_ReadTimeout(t *testing.T) {
	port := NewTestableSerialPort()
	port.SetReadTimeout(20 * time.Millisecond)

	start := time.Now()
	n, err := port.Read(make([]byte, 8))
	if n != 0 || err != nil {
		t.Errorf("Read() on empty port = %d, %v; want 0, nil", n, err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("Read() returned after %v, before the timeout", elapsed)
	}
}

func TestTestableSerialPort_DataWakesReader(t *testing.T) {
	port := NewTestableSerialPort()
	port.SetReadTimeout(5 * time.Second)

	go func() {
		time.Sleep(10 * time.Millisecond)
		port.AddReadData([]byte("abc"))
	}()

	buf := make([]byte, 8)
	n, err := port.Read(buf)
	if err != nil || string(buf[:n]) != "abc" {
		t.Errorf("Read() = %q, %v", buf[:n], err)
	}
}

func TestTestableSerialPort_Errors(t *testing.T) {
	port := NewTestableSerialPort()
	port.ReadError = errors.New("framing error")
	if _, err := port.Read(make([]byte, 1)); err == nil {
		t.Error("Read() did not return ReadError")
	}
	if _, err := port.Read(make([]byte, 1)); err != nil {
		t.Errorf("ReadError should be returned once, got %v", err)
	}

	port.Write([]byte("x"))
	if port.WriteBuffer.String() != "x" || port.WriteCalls != 1 {
		t.Errorf("Write recorded %q in %d calls", port.WriteBuffer.String(), port.WriteCalls)
	}

	port.CloseError = errors.New("busy")
	if err := port.Close(); err == nil {
		t.Error("Close() did not return CloseError")
	}
	if _, err := port.Read(make([]byte, 1)); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Read() after Close error = %v", err)
	}
	if _, err := port.Write([]byte("y")); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Write() after Close error = %v", err)
	}
}

func TestNewReplayPort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	port := NewReplayPort(ctx, []string{"1,2", "3,4"}, time.Millisecond)
	reader := NewLineReader("replay", port)

	want := []string{"1,2\r\n", "3,4\r\n", "1,2\r\n"}
	for i, w := range want {
		line, err := reader.ReadLine(time.Second)
		if err != nil {
			t.Fatalf("ReadLine #%d error = %v", i, err)
		}
		if string(line) != w {
			t.Errorf("ReadLine #%d = %q, want %q", i, line, w)
		}
	}
	reader.Close()
}

func TestNewReplayPort_Empty(t *testing.T) {
	port := NewReplayPort(context.Background(), nil, time.Millisecond)
	port.SetReadTimeout(5 * time.Millisecond)
	if n, err := port.Read(make([]byte, 8)); n != 0 || err != nil {
		t.Errorf("Read() = %d, %v; want no data", n, err)
	}
}
