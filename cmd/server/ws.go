package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"realtime-caption-translator/internal/database"
	"realtime-caption-translator/internal/hub"
	"realtime-caption-translator/internal/room"
)

const (
	closeInvalidToken = 4001
	closeRoomMissing  = 4004

	utteranceTimeout = 20 * time.Second
)

type roomStateMessage struct {
	Type         string             `json:"type"`
	RoomID       string             `json:"room_id"`
	Name         string             `json:"name"`
	AllowedLangs []string           `json:"allowed_languages"`
	Participants []room.Participant `json:"participants"`
	You          room.Participant   `json:"you"`
}

type simpleEvent struct {
	Type   string `json:"type"`
	UserID string `json:"user_id,omitempty"`
}

type micStatusEvent struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	MicOn  bool   `json:"mic_on"`
}

type preferenceUpdatedEvent struct {
	Type            string           `json:"type"`
	Preference      room.Participant `json:"preference"`
}

type userPreferenceChangedEvent struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type inboundMessage struct {
	Type            string  `json:"type"`
	AudioMode       *string `json:"audio_mode"`
	SubtitleEnabled *bool   `json:"subtitle_enabled"`
	TargetLanguage  *string `json:"target_language"`
}

func closeWithCode(ws *websocket.Conn, code int, reason string) {
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	_ = ws.Close()
}

func (s *server) handleWSRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room_id")
	token := r.URL.Query().Get("token")

	claims, err := s.verifier.VerifyToken(r.Context(), token)
	var userID string
	if err == nil {
		userID, _ = claims["sub"].(string)
	}

	ws, upErr := s.upgrader.Upgrade(w, r, nil)
	if upErr != nil {
		return
	}

	if err != nil || userID == "" {
		closeWithCode(ws, closeInvalidToken, "invalid token or missing user")
		return
	}

	dbRoom, dbErr := database.GetRoomByID(roomID)
	if dbErr != nil || dbRoom == nil || !dbRoom.IsActive {
		closeWithCode(ws, closeRoomMissing, "room missing or inactive")
		return
	}

	policy := room.Policy{
		RoomID:           dbRoom.ID,
		Name:             dbRoom.Name,
		AllowedLanguages: dbRoom.AllowedLanguages,
		DefaultAudioMode: room.AudioMode(dbRoom.DefaultAudioMode),
		AllowModeSwitch:  dbRoom.AllowModeSwitch,
		IsPrivate:        dbRoom.IsPrivate,
		CreatorID:        dbRoom.CreatorID,
	}
	rm := s.rooms.GetOrCreateRoom(policy)

	nativeLang := r.URL.Query().Get("lang")
	if nativeLang == "" {
		nativeLang = "en"
	}
	targetLang := r.URL.Query().Get("target_lang")
	if targetLang != "" && !rm.Policy.Allows(targetLang) {
		log.Printf("ws: rejecting disallowed target_lang %q for room=%s user=%s, falling back to native", targetLang, roomID, userID)
		targetLang = nativeLang
	}
	audioMode := room.AudioMode(r.URL.Query().Get("audio_mode"))
	subtitleEnabled := parseBoolDefault(r.URL.Query().Get("subtitle_enabled"), true)
	displayName := r.URL.Query().Get("name")
	if displayName == "" {
		displayName = userID
	}

	rm.AddParticipant(room.Participant{
		UserID:          userID,
		DisplayName:     displayName,
		NativeLanguage:  nativeLang,
		AudioMode:       audioMode,
		SubtitleEnabled: subtitleEnabled,
		TargetLanguage:  targetLang,
	})

	if err := database.SetSpeakerName(roomID, userID, displayName); err != nil {
		log.Printf("ws: set speaker name failed room=%s user=%s: %v", roomID, userID, err)
	}

	conn := s.hub.Connect(roomID, userID, ws)
	me, _ := rm.Get(userID)

	_ = s.hub.SendJSON(roomID, userID, roomStateMessage{
		Type: "room_state", RoomID: rm.Policy.RoomID, Name: rm.Policy.Name,
		AllowedLangs: rm.Policy.AllowedLanguages, Participants: rm.Snapshot(), You: me,
	})
	s.hub.BroadcastJSON(roomID, simpleEvent{Type: "user_joined", UserID: userID}, userID)

	s.readLoop(conn, rm, userID)
}

func (s *server) readLoop(conn *hub.Conn, rm *room.Room, userID string) {
	roomID := rm.Policy.RoomID
	defer s.handleDisconnect(rm, userID)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch mt {
		case websocket.TextMessage:
			s.handleInbound(rm, userID, data)
		case websocket.BinaryMessage:
			ctx, cancel := context.WithTimeout(rm.InboundContext(userID), utteranceTimeout)
			audioBytes := append([]byte(nil), data...)
			go func() {
				defer cancel()
				if err := s.orch.ProcessUtterance(ctx, rm, userID, audioBytes); err != nil {
					log.Printf("ws: process utterance failed room=%s user=%s: %v", roomID, userID, err)
				}
			}()
		}
	}
}

func (s *server) handleInbound(rm *room.Room, userID string, data []byte) {
	roomID := rm.Policy.RoomID
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "preference_change":
		update := room.PreferenceUpdate{
			AudioMode:       (*room.AudioMode)(msg.AudioMode),
			SubtitleEnabled: msg.SubtitleEnabled,
			TargetLanguage:  msg.TargetLanguage,
		}
		if err := rm.UpdatePreference(userID, update); err != nil {
			_ = s.hub.SendJSON(roomID, userID, errorEvent{Type: "error", Message: err.Error()})
			return
		}
		p, _ := rm.Get(userID)
		_ = s.hub.SendJSON(roomID, userID, preferenceUpdatedEvent{Type: "preference_updated", Preference: p})
		s.hub.BroadcastJSON(roomID, userPreferenceChangedEvent{Type: "user_preference_changed", UserID: userID}, userID)

	case "speaking_start":
		rm.SetActiveSpeaker(userID)
		s.hub.BroadcastJSON(roomID, simpleEvent{Type: "speaking_start", UserID: userID}, "")

	case "speaking_end":
		rm.SetActiveSpeaker("")
		s.hub.BroadcastJSON(roomID, simpleEvent{Type: "speaking_end", UserID: userID}, "")

	case "mic_on":
		if err := rm.SetMic(userID, true); err == nil {
			s.hub.BroadcastJSON(roomID, micStatusEvent{Type: "mic_status_changed", UserID: userID, MicOn: true}, "")
		}

	case "mic_off":
		if err := rm.SetMic(userID, false); err == nil {
			s.hub.BroadcastJSON(roomID, micStatusEvent{Type: "mic_status_changed", UserID: userID, MicOn: false}, "")
		}
	}
}

func (s *server) handleDisconnect(rm *room.Room, userID string) {
	roomID := rm.Policy.RoomID
	s.hub.Disconnect(roomID, userID)
	rm.CancelInbound(userID)
	empty := rm.RemoveParticipant(userID)
	s.hub.BroadcastJSON(roomID, simpleEvent{Type: "user_left", UserID: userID}, "")

	if !empty {
		return
	}
	if err := s.sessions.EndActive(roomID); err != nil {
		log.Printf("ws: end_session failed for room %s: %v", roomID, err)
	}
	s.sessions.Forget(roomID)
	s.qos.Forget(roomID)
	s.rooms.DisposeIfEmpty(roomID)
}
