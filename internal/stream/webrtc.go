package stream

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/satindergrewal/sruthi/internal/audio"
	"gopkg.in/hraban/opus.v2"
)

// DefaultBitrate is the Opus target for peers.
const DefaultBitrate = 128000

// WebRTCHandler negotiates peers over a single POST of the SDP offer and
// streams the trainer's output to each as Opus.
type WebRTCHandler struct {
	broadcaster *Broadcaster
	bitrate     int
	config      webrtc.Configuration

	mu    sync.Mutex
	peers map[string]*webrtc.PeerConnection
}

// NewWebRTCHandler creates a handler encoding at bitrate bits/s. A
// non-positive bitrate selects DefaultBitrate.
func NewWebRTCHandler(b *Broadcaster, bitrate int) *WebRTCHandler {
	if bitrate <= 0 {
		bitrate = DefaultBitrate
	}
	return &WebRTCHandler{
		broadcaster: b,
		bitrate:     bitrate,
		peers:       make(map[string]*webrtc.PeerConnection),
	}
}

// PeerCount returns the number of connected peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Close hangs up every peer.
func (h *WebRTCHandler) Close() {
	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[string]*webrtc.PeerConnection)
	h.mu.Unlock()
	for _, pc := range peers {
		pc.Close()
	}
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil || offer.SDP == "" {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	pc, track, status, err := h.negotiate(id, offer)
	if err != nil {
		log.Printf("WebRTC peer %s: %v", id, err)
		http.Error(w, err.Error(), status)
		return
	}

	h.mu.Lock()
	h.peers[id] = pc
	n := len(h.peers)
	h.mu.Unlock()
	log.Printf("WebRTC peer %s connected (total: %d)", id, n)

	go h.streamToPeer(id, track)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			if h.removePeer(id) {
				pc.Close()
				log.Printf("WebRTC peer %s disconnected (remaining: %d)", id, h.PeerCount())
			}
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

type negotiateError struct {
	msg string
	err error
}

func (e *negotiateError) Error() string { return e.msg + ": " + e.err.Error() }
func (e *negotiateError) Unwrap() error { return e.err }

// negotiate answers offer and waits for ICE gathering so the answer carries
// every candidate.
func (h *WebRTCHandler) negotiate(id string, offer webrtc.SessionDescription) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, int, error) {
	pc, err := webrtc.NewPeerConnection(h.config)
	if err != nil {
		return nil, nil, http.StatusInternalServerError, &negotiateError{"create peer connection", err}
	}
	fail := func(status int, msg string, err error) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, int, error) {
		pc.Close()
		return nil, nil, status, &negotiateError{msg, err}
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audio.SampleRate, Channels: audio.Channels},
		"audio",
		"sruthi-"+id,
	)
	if err != nil {
		return fail(http.StatusInternalServerError, "create audio track", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return fail(http.StatusInternalServerError, "add track", err)
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fail(http.StatusBadRequest, "set remote description", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail(http.StatusInternalServerError, "create answer", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail(http.StatusInternalServerError, "set local description", err)
	}
	<-gathered
	return pc, track, http.StatusOK, nil
}

func (h *WebRTCHandler) streamToPeer(id string, track *webrtc.TrackLocalStaticSample) {
	l := h.broadcaster.Subscribe()
	defer func() {
		h.broadcaster.Unsubscribe(l)
		if d := l.Dropped(); d > 0 {
			log.Printf("WebRTC peer %s dropped %d frames", id, d)
		}
	}()

	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		log.Printf("WebRTC peer %s: opus encoder: %v", id, err)
		return
	}
	if err := enc.SetBitrate(h.bitrate); err != nil {
		log.Printf("WebRTC peer %s: opus bitrate %d: %v", id, h.bitrate, err)
	}

	packet := make([]byte, 4000)
	for {
		select {
		case <-l.done:
			return
		case frame := <-l.C:
			n, err := enc.Encode(frame, packet)
			if err != nil {
				log.Printf("WebRTC peer %s: opus encode: %v", id, err)
				continue
			}
			if err := track.WriteSample(media.Sample{Data: packet[:n], Duration: audio.FrameDuration}); err != nil {
				return
			}
			if !h.connected(id) {
				return
			}
		}
	}
}

func (h *WebRTCHandler) connected(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.peers[id]
	return ok
}

func (h *WebRTCHandler) removePeer(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[id]; !ok {
		return false
	}
	delete(h.peers, id)
	return true
}
