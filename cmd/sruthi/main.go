package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/satindergrewal/sruthi/internal/audio"
	"github.com/satindergrewal/sruthi/internal/config"
	"github.com/satindergrewal/sruthi/internal/engine"
	"github.com/satindergrewal/sruthi/internal/output"
	"github.com/satindergrewal/sruthi/internal/session"
	"github.com/satindergrewal/sruthi/internal/stream"
	"github.com/satindergrewal/sruthi/internal/timer"
	"github.com/satindergrewal/sruthi/internal/web"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("sruthi starting up...")

	g, gctx := errgroup.WithContext(ctx)

	// Fan-out of rendered frames to the speaker and remote listeners
	broadcaster := stream.NewBroadcaster(cfg.BufferFrames)

	var speaker *output.Speaker
	if cfg.Speaker {
		speaker = output.NewSpeaker(broadcaster, audio.SampleRate, audio.Channels)
	} else {
		log.Println("Local speaker disabled (SRUTHI_SPEAKER=false)")
	}

	// The audio context is created on the first call that needs sound.
	open := func() (engine.Backend, error) {
		var opts []audio.Option
		if speaker != nil {
			opts = append(opts, audio.WithDevice(speaker))
		}
		ac := audio.NewContext(opts...)
		g.Go(func() error {
			ac.Run(gctx)
			return nil
		})
		g.Go(func() error {
			broadcaster.Run(gctx, ac.Frames())
			return nil
		})
		return ac, nil
	}

	ecfg := engine.DefaultConfig()
	ecfg.Volume = cfg.Volume
	ecfg.WakeMargin = cfg.WakeMargin
	eng, err := engine.New(open, timer.System{}, ecfg)
	if err != nil {
		log.Fatalf("Engine config: %v", err)
	}

	ctrl := session.New(eng, timer.System{})
	if err := ctrl.SetVolume(cfg.Volume); err != nil {
		log.Fatalf("Initial volume: %v", err)
	}

	// HTTP routes
	mux := web.NewMux(ctrl)
	webrtcHandler := stream.NewWebRTCHandler(broadcaster, cfg.OpusBitrate)
	mux.Handle("/offer", webrtcHandler)
	mux.Handle("/stream", stream.NewHTTPHandler(broadcaster))
	mux.HandleFunc("/api/listeners", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(map[string]any{
			"sinks":        broadcaster.ListenerCount(),
			"webrtc_peers": webrtcHandler.PeerCount(),
			"speaker":      speaker != nil,
		})
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	g.Go(func() error {
		log.Printf("sruthi live on %s", addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		err := server.Close()
		webrtcHandler.Close()
		ctrl.Close()
		if cerr := eng.Close(); cerr != nil {
			log.Printf("Engine close: %v", cerr)
		}
		if speaker != nil {
			speaker.Close()
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("sruthi: %v", err)
	}
}
