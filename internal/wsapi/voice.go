package wsapi

import "github.com/gorilla/websocket"

// voiceService mirrors the Python VoiceMixin's default posture: voice is
// opt-in and, absent configuration, every voice message gracefully
// no-ops with an explanatory error rather than failing the connection.
// No speech-to-text or text-to-speech library exists anywhere in this
// tree's dependency corpus to ground a real transcription/synthesis path
// on (see DESIGN.md), so only the disabled-by-default code path from
// voice.py is reproduced.
type voiceService struct {
	enabled bool
	hub     *Hub
}

func newVoiceService(enabled bool, hub *Hub) *voiceService {
	return &voiceService{enabled: enabled, hub: hub}
}

func (v *voiceService) handleAudio(conn *websocket.Conn, raw map[string]any) error {
	if !v.enabled {
		return v.hub.send(conn, newError("voice is not configured on this daemon"))
	}
	return v.hub.send(conn, newError("voice transcription is not available in this build"))
}

func (v *voiceService) handleModeToggle(conn *websocket.Conn, raw map[string]any) error {
	if !v.enabled {
		return v.hub.send(conn, newError("voice is not configured on this daemon"))
	}
	return v.hub.send(conn, map[string]any{"type": "voice_mode", "enabled": false})
}
