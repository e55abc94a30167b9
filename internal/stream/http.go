package stream

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"

	"github.com/google/uuid"
	"github.com/satindergrewal/sruthi/internal/audio"
)

// HTTPHandler serves the output as a chunked MP3 stream for clients without
// WebRTC. Each connection runs its own ffmpeg encoder.
type HTTPHandler struct {
	broadcaster *Broadcaster
	ffmpeg      string
}

// NewHTTPHandler creates an MP3 handler using the ffmpeg binary on PATH.
func NewHTTPHandler(b *Broadcaster) *HTTPHandler {
	return &HTTPHandler{broadcaster: b, ffmpeg: "ffmpeg"}
}

// encoderArgs reads s16le PCM on stdin and writes MP3 on stdout.
func encoderArgs() []string {
	return []string{
		"-f", "s16le",
		"-ar", fmt.Sprint(audio.SampleRate),
		"-ac", fmt.Sprint(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", "192k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id := uuid.NewString()
	cmd := exec.CommandContext(ctx, h.ffmpeg, encoderArgs()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Printf("HTTP listener %s: stdin pipe: %v", id, err)
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("HTTP listener %s: stdout pipe: %v", id, err)
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := cmd.Start(); err != nil {
		log.Printf("HTTP listener %s: start ffmpeg: %v", id, err)
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}
	defer cmd.Wait()

	l := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(l)

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "sruthi")

	log.Printf("HTTP listener %s connected (total: %d)", id, h.broadcaster.ListenerCount())
	defer log.Printf("HTTP listener %s disconnected", id)

	go func() {
		defer stdin.Close()
		pcm := NewReader(l)
		go func() {
			<-ctx.Done()
			h.broadcaster.Unsubscribe(l)
		}()
		io.Copy(stdin, pcm)
	}()

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("HTTP listener %s: ffmpeg read: %v", id, err)
			}
			return
		}
	}
}
