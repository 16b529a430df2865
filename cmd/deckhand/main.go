package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/deckhand-audio/deckhand/internal/autopilot"
	"github.com/deckhand-audio/deckhand/internal/config"
	"github.com/deckhand-audio/deckhand/internal/deck"
	"github.com/deckhand-audio/deckhand/internal/engine"
	"github.com/deckhand-audio/deckhand/internal/ingest"
	"github.com/deckhand-audio/deckhand/internal/mix"
	"github.com/deckhand-audio/deckhand/internal/playlist"
	"github.com/deckhand-audio/deckhand/internal/stream"
)

const maxUploadBytes = 200 << 20 // 200 MB

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("deckhand starting up...")

	// Audio engine: two channels mixed into 20ms PCM frames.
	eng := engine.New()
	go eng.Run(ctx)

	// Hub: fan-out master-mix frames to all listeners.
	hub := stream.NewHub()
	go hub.Run(ctx, eng.Frames())

	// Decks
	deckA := deck.New(deck.A, eng.ChannelA())
	deckB := deck.New(deck.B, eng.ChannelB())
	deckA.SetRampDurations(cfg.RateRampDuration, cfg.GainRampDuration)
	deckB.SetRampDurations(cfg.RateRampDuration, cfg.GainRampDuration)
	deckA.SetOnLoad(func(t *playlist.Track) {
		log.Printf("deck A loaded %q (%.0f BPM)", t.Title, t.Tempo)
	})
	deckB.SetOnLoad(func(t *playlist.Track) {
		log.Printf("deck B loaded %q (%.0f BPM)", t.Title, t.Tempo)
	})

	// Track pool and ingest path
	list := playlist.New()

	var cache *ingest.Cache
	if cfg.AnalysisCachePath != "" {
		var err error
		cache, err = ingest.OpenCache(cfg.AnalysisCachePath)
		if err != nil {
			log.Printf("analysis cache unavailable, analyzing every upload: %v", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}
	ingestor := ingest.New(list, cache)
	ingestor.SetDefaultTempo(cfg.DefaultTempo)

	// Autopilot
	pilot := autopilot.NewSession(deckA, deckB, list, autopilot.Config{
		MonitorInterval:   cfg.MonitorInterval,
		Lookahead:         cfg.Lookahead,
		CrossfadeDuration: cfg.CrossfadeDuration,
		CrossfadeSteps:    cfg.CrossfadeSteps,
	})
	go pilot.Run(ctx)

	// WebRTC handler (track peer count for status)
	webrtcHandler := stream.NewWebRTCHandler(hub)

	decks := map[string]*deck.Deck{"a": deckA, "b": deckB}

	// HTTP routes
	mux := http.NewServeMux()

	// Audio streams
	mux.Handle("/stream", stream.NewMP3Handler(hub, 192))
	mux.Handle("/offer", webrtcHandler)

	// API endpoints
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(map[string]any{
			"deck_a":        deckA.Snapshot(),
			"deck_b":        deckB.Snapshot(),
			"autopilot":     pilot.Status(),
			"playlist_size": list.Len(),
			"listeners":     hub.Count(),
			"webrtc_peers":  webrtcHandler.PeerCount(),
		})
	})

	mux.HandleFunc("/api/playlist", func(w http.ResponseWriter, r *http.Request) {
		type entry struct {
			ID       string  `json:"id"`
			Title    string  `json:"title"`
			Tempo    float64 `json:"tempo"`
			Energy   float64 `json:"energy"`
			Duration float64 `json:"duration"`
		}
		tracks := list.Tracks()
		out := make([]entry, 0, len(tracks))
		for _, t := range tracks {
			out = append(out, entry{
				ID:       t.ID,
				Title:    t.Title,
				Tempo:    t.Tempo,
				Energy:   t.Energy,
				Duration: t.Duration,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})

	mux.HandleFunc("/api/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file field", http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "read upload failed", http.StatusBadRequest)
			return
		}
		title := r.FormValue("title")
		if title == "" {
			title = header.Filename
		}

		track, err := ingestor.Ingest(r.Context(), title, header.Filename, data)
		if err != nil {
			log.Printf("upload %q rejected: %v", header.Filename, err)
			http.Error(w, fmt.Sprintf("ingest failed: %v", err), http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"ok":       true,
			"id":       track.ID,
			"title":    track.Title,
			"tempo":    track.Tempo,
			"duration": track.Duration,
		})
	})

	// Deck transport: /api/deck/{a|b}/{action}
	mux.HandleFunc("/api/deck/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/deck/"), "/")
		if len(parts) != 2 {
			http.NotFound(w, r)
			return
		}
		d, ok := decks[parts[0]]
		if !ok {
			http.Error(w, "unknown deck", http.StatusNotFound)
			return
		}
		if id, busy := pilot.TransitionTarget(); busy && d.ID() == id {
			http.Error(w, "deck is being faded in by the autopilot", http.StatusConflict)
			return
		}

		switch parts[1] {
		case "load":
			var req struct {
				Index *int   `json:"index"`
				ID    string `json:"id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request", http.StatusBadRequest)
				return
			}
			var track *playlist.Track
			if req.Index != nil {
				track = list.At(*req.Index)
			} else if req.ID != "" {
				for _, t := range list.Tracks() {
					if t.ID == req.ID {
						track = t
						break
					}
				}
			}
			if track == nil {
				http.Error(w, "track not found", http.StatusNotFound)
				return
			}
			if err := d.Load(track); err != nil {
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
				return
			}
		case "play":
			var req struct {
				Offset float64 `json:"offset"`
			}
			if r.ContentLength > 0 {
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					http.Error(w, "invalid request", http.StatusBadRequest)
					return
				}
			}
			if err := d.Play(req.Offset); err != nil {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
		case "toggle":
			d.TogglePlay()
		case "stop":
			d.Stop()
		case "speed":
			var req struct {
				Rate float64 `json:"rate"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request", http.StatusBadRequest)
				return
			}
			d.SetRate(req.Rate)
		case "volume":
			var req struct {
				Level float64 `json:"level"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request", http.StatusBadRequest)
				return
			}
			d.SetVolume(req.Level)
		case "fx":
			var req struct {
				Kind string `json:"kind"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request", http.StatusBadRequest)
				return
			}
			d.TriggerFX(deck.FX(req.Kind))
		default:
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "deck": d.Snapshot()})
	})

	// Crossfader: one knob drives both deck gains on the equal-power curve.
	mux.HandleFunc("/api/fader", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Position float64 `json:"position"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		levelA, levelB := mix.Levels(req.Position)
		deckA.SetVolume(levelA)
		deckB.SetVolume(levelB)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"ok":      true,
			"level_a": levelA,
			"level_b": levelB,
		})
	})

	mux.HandleFunc("/api/autopilot", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Engaged bool `json:"engaged"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if req.Engaged {
			pilot.Engage()
		} else {
			pilot.Disengage()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(pilot.Status())
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		server.Close()
	}()

	log.Printf("deckhand live on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}
