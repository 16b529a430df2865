package stream

import (
	"context"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/deckhand-audio/deckhand/internal/engine"
)

// MP3Handler serves the master mix as a chunked MP3 stream. Each connection
// spawns an FFmpeg process encoding PCM to MP3 in real time.
type MP3Handler struct {
	hub     *Hub
	bitrate int // kbit/s
}

// NewMP3Handler creates the HTTP stream handler.
func NewMP3Handler(hub *Hub, bitrateKbps int) *MP3Handler {
	if bitrateKbps <= 0 {
		bitrateKbps = 192
	}
	return &MP3Handler{hub: hub, bitrate: bitrateKbps}
}

func (h *MP3Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "deckhand mix")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "s16le",
		"-ar", strconv.Itoa(engine.SampleRate),
		"-ac", strconv.Itoa(engine.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", strconv.Itoa(h.bitrate)+"k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Printf("mp3 stream: stdin pipe error: %v", err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("mp3 stream: stdout pipe error: %v", err)
		return
	}
	if err := cmd.Start(); err != nil {
		log.Printf("mp3 stream: ffmpeg start error: %v", err)
		return
	}

	sub := h.hub.Subscribe(0)
	defer h.hub.Unsubscribe(sub)

	log.Printf("mp3 listener connected (total: %d)", h.hub.Count())
	defer log.Printf("mp3 listener disconnected")

	// Feed PCM frames to FFmpeg.
	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Done():
				return
			case frame, ok := <-sub.Frames:
				if !ok {
					return
				}
				if _, err := stdin.Write(engine.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	// Relay encoded MP3 to the response.
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("mp3 stream: ffmpeg read error: %v", err)
			}
			break
		}
	}

	cmd.Wait()
}
