package stream

import (
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWAVHeader(t *testing.T) {
	h := WAVHeader(48000, 2, 16)
	if len(h) != 44 {
		t.Fatalf("header length = %d, want 44", len(h))
	}
	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" || string(h[36:40]) != "data" {
		t.Errorf("bad chunk ids: %q", h)
	}
	if got := binary.LittleEndian.Uint32(h[24:]); got != 48000 {
		t.Errorf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(h[28:]); got != 48000*4 {
		t.Errorf("byte rate = %d", got)
	}
	if got := binary.LittleEndian.Uint16(h[32:]); got != 4 {
		t.Errorf("block align = %d", got)
	}
}

func TestHTTPStreamsWAV(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	srv := httptest.NewServer(NewHTTPHandler(b, zerolog.Nop()))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []int16, 1)
	go b.Run(ctx, source)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Content-Type = %q", ct)
	}

	header := make([]byte, 44)
	if _, err := io.ReadFull(resp.Body, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	if string(header[:4]) != "RIFF" {
		t.Fatalf("header = %q", header[:4])
	}

	// The listener is registered before the header is written.
	if b.ListenerCount() != 1 {
		t.Fatalf("ListenerCount = %d, want 1", b.ListenerCount())
	}
	source <- []int16{256, -1}

	body := make([]byte, 4)
	done := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(resp.Body, body)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no PCM received")
	}
	if body[0] != 0x00 || body[1] != 0x01 || body[2] != 0xff || body[3] != 0xff {
		t.Errorf("pcm bytes = %x", body)
	}
}
