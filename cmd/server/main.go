package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"realtime-caption-translator/internal/aiprovider"
	"realtime-caption-translator/internal/auth"
	"realtime-caption-translator/internal/cache"
	"realtime-caption-translator/internal/config"
	"realtime-caption-translator/internal/database"
	"realtime-caption-translator/internal/hub"
	"realtime-caption-translator/internal/pipeline"
	"realtime-caption-translator/internal/qos"
	"realtime-caption-translator/internal/room"
	"realtime-caption-translator/internal/session"
	"realtime-caption-translator/internal/storage"
	"realtime-caption-translator/internal/transcript"
)

// Helper functions for consistent JSON error responses, kept in the
// teacher's style.
func sendJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func sendNotFound(w http.ResponseWriter, message string) { sendJSONError(w, http.StatusNotFound, message) }
func sendForbidden(w http.ResponseWriter, message string) {
	sendJSONError(w, http.StatusForbidden, message)
}
func sendUnauthorized(w http.ResponseWriter, message string) {
	sendJSONError(w, http.StatusUnauthorized, message)
}
func sendBadRequest(w http.ResponseWriter, message string) {
	sendJSONError(w, http.StatusBadRequest, message)
}
func sendInternalError(w http.ResponseWriter, message string) {
	sendJSONError(w, http.StatusInternalServerError, message)
}

type server struct {
	cfg      *config.Config
	rooms    *room.Manager
	hub      *hub.Hub
	sessions *session.Manager
	qos      *qos.Manager
	cache    cache.Cache
	orch     *pipeline.Orchestrator
	verifier auth.Verifier
	hsSigner *auth.SharedSecretVerifier // non-nil only in shared-secret mode; used to issue dev tokens
	archive  *storage.MinioClient
	upgrader websocket.Upgrader
}

func main() {
	cfg := config.Load()

	log.Println("initializing database connection")
	if err := database.Init(); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer database.Close()

	provider, err := aiprovider.New(cfg.AIProvider,
		aiprovider.HTTPConfig{ASRBaseURL: cfg.ASRBaseURL, TranslationBaseURL: cfg.TranslationBaseURL},
		aiprovider.AWSConfig{Region: cfg.AWSRegion},
	)
	if err != nil {
		log.Fatalf("failed to build AI provider %q: %v", cfg.AIProvider, err)
	}
	log.Printf("AI provider: %s", cfg.AIProvider)

	archive, err := storage.NewMinioFromEnv()
	if err != nil {
		log.Printf("audio archival disabled: %v", err)
	}

	var verifier auth.Verifier
	var hsSigner *auth.SharedSecretVerifier
	switch cfg.AuthMode {
	case "keycloak":
		kc, err := auth.NewKeycloakVerifierFromEnv()
		if err != nil {
			log.Fatalf("keycloak auth configured but invalid: %v", err)
		}
		verifier = kc
		log.Println("auth mode: Keycloak RS256/JWKS")
	default:
		hsSigner, err = auth.NewSharedSecretVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
		if err != nil {
			log.Fatalf("failed to configure JWT secret verifier: %v", err)
		}
		verifier = hsSigner
		log.Println("auth mode: shared-secret HS256")
	}

	s := &server{
		cfg:      cfg,
		rooms:    room.NewManager(),
		hub:      hub.New(),
		sessions: session.NewManager(),
		qos:      qos.NewManager(cfg.MaxLatencyMS, cfg.MaxJitterMS),
		cache:    cache.New(cfg.RedisURL),
		verifier: verifier,
		hsSigner: hsSigner,
		archive:  archive,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return checkOrigin(cfg.CORSOrigins, r) },
		},
	}
	s.orch = &pipeline.Orchestrator{
		Provider: provider,
		Cache:    s.cache,
		Hub:      s.hub,
		Store:    pipeline.NewLiveStore(s.sessions),
		QoS:      s.qos,
		Archive:  archive,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /rooms", s.handleCreateRoom)
	mux.HandleFunc("GET /ws/room/{room_id}", s.handleWSRoom)
	mux.HandleFunc("GET /rooms/{room_id}/transcript", s.handleTranscript)
	mux.HandleFunc("GET /translate/subtitle/{subtitle_id}/{target_lang}", s.handleTranslatePull)
	if hsSigner != nil {
		mux.HandleFunc("POST /auth/dev-token", s.handleDevToken)
	}

	handler := withCORS(cfg.CORSOrigins, mux)

	log.Printf("listening on %s", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, handler); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

func checkOrigin(allowed []string, r *http.Request) bool {
	if len(allowed) == 0 {
		log.Println("WARNING: CORS_ORIGINS not set - allowing all origins (development mode)")
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range allowed {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

func withCORS(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if checkOrigin(allowed, r) {
			if origin := r.Header.Get("Origin"); origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := database.HealthCheck(); err != nil {
		sendJSONError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"activeRooms": s.rooms.ActiveRoomCount(),
	})
}

func (s *server) handleDevToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		sendBadRequest(w, "userId is required")
		return
	}
	token, err := s.hsSigner.IssueToken(req.UserID, s.cfg.JWTExpireMinutes)
	if err != nil {
		sendInternalError(w, "failed to issue token")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

type createRoomRequest struct {
	Name             string   `json:"name"`
	AllowedLanguages []string `json:"allowedLanguages"`
	DefaultAudioMode string   `json:"defaultAudioMode"`
	AllowModeSwitch  bool     `json:"allowModeSwitch"`
	IsPrivate        bool     `json:"isPrivate"`
}

func (s *server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r, r.Header.Get("Authorization"))
	if !ok {
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendBadRequest(w, "invalid request body")
		return
	}
	if len(req.AllowedLanguages) == 0 {
		req.AllowedLanguages = s.cfg.AllowedLanguages
	}
	if req.DefaultAudioMode == "" {
		req.DefaultAudioMode = string(room.AudioOriginal)
	}

	created, err := database.CreateRoom(database.Room{
		ID:               uuid.NewString(),
		Name:             req.Name,
		AllowedLanguages: req.AllowedLanguages,
		DefaultAudioMode: req.DefaultAudioMode,
		AllowModeSwitch:  req.AllowModeSwitch,
		IsPrivate:        req.IsPrivate,
		CreatorID:        userID,
	})
	if err != nil {
		log.Printf("create room failed: %v", err)
		sendInternalError(w, "failed to create room")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(created)
}

// authenticate extracts and verifies a bearer token, returning the
// subject claim as the caller's user id.
func (s *server) authenticate(w http.ResponseWriter, r *http.Request, authHeader string) (string, bool) {
	token, err := extractBearerToken(authHeader)
	if err != nil {
		sendUnauthorized(w, err.Error())
		return "", false
	}
	claims, err := s.verifier.VerifyToken(r.Context(), token)
	if err != nil {
		sendUnauthorized(w, "invalid token")
		return "", false
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		sendUnauthorized(w, "token missing subject claim")
		return "", false
	}
	return sub, true
}

func extractBearerToken(authHeader string) (string, error) {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return "", fmt.Errorf("authorization header missing")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", fmt.Errorf("authorization header must be a bearer token")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", fmt.Errorf("bearer token is empty")
	}
	return token, nil
}

func (s *server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r, r.Header.Get("Authorization"))
	if !ok {
		return
	}
	roomID := r.PathValue("room_id")

	dbRoom, err := database.GetRoomByID(roomID)
	if err != nil {
		sendInternalError(w, "failed to look up room")
		return
	}
	if dbRoom == nil {
		sendNotFound(w, "room not found")
		return
	}
	if dbRoom.IsPrivate && dbRoom.CreatorID != userID {
		sendForbidden(w, "not authorized to read this room's transcript")
		return
	}

	lang := r.URL.Query().Get("lang")
	speakerNames, err := database.GetSpeakerMappings(roomID)
	if err != nil {
		log.Printf("transcript: speaker mapping lookup failed for room %s: %v", roomID, err)
		speakerNames = map[string]string{}
	}
	entries, err := transcript.Read(roomID, lang, speakerNames)
	if err != nil {
		sendInternalError(w, "failed to read transcript")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"entries": entries})
}

func (s *server) handleTranslatePull(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r, r.Header.Get("Authorization")); !ok {
		return
	}
	subtitleID := r.PathValue("subtitle_id")
	targetLang := r.PathValue("target_lang")
	wait := r.URL.Query().Get("wait") == "true"

	ctx := r.Context()
	text, found, err := s.cache.GetTranslation(ctx, subtitleID, targetLang, wait)
	if err != nil {
		sendInternalError(w, "failed to read translation cache")
		return
	}
	if found {
		writeJSON(w, map[string]interface{}{"status": "ready", "translated_text": text})
		return
	}

	marked, err := s.cache.MarkPending(ctx, subtitleID, targetLang)
	if err != nil {
		sendInternalError(w, "failed to mark translation pending")
		return
	}
	if !marked {
		// Someone else already owns this translation; it's in flight.
		if wait {
			text, found, err = s.cache.GetTranslation(ctx, subtitleID, targetLang, true)
			if err == nil && found {
				writeJSON(w, map[string]interface{}{"status": "ready", "translated_text": text})
				return
			}
		}
		writeJSON(w, map[string]interface{}{"status": "pending"})
		return
	}

	original, originalFound, err := s.cache.GetOriginal(ctx, subtitleID)
	if err != nil || !originalFound {
		row, dbErr := database.GetSubtitleByID(subtitleID)
		if dbErr != nil || row == nil {
			writeJSON(w, map[string]interface{}{"status": "not_found"})
			return
		}
		original = cache.Original{Text: row.OriginalText, Lang: row.OriginalLanguage}
	}

	translated, err := s.orch.Provider.TranslateText(ctx, original.Text, original.Lang, targetLang, nil)
	if err != nil {
		log.Printf("translate pull: translation failed for %s/%s: %v", subtitleID, targetLang, err)
		if clearErr := s.cache.ClearPending(ctx, subtitleID, targetLang); clearErr != nil {
			log.Printf("translate pull: clear_pending failed for %s/%s: %v", subtitleID, targetLang, clearErr)
		}
		writeJSON(w, map[string]interface{}{"status": "failed"})
		return
	}
	if err := s.cache.StoreTranslation(ctx, subtitleID, targetLang, translated); err != nil {
		log.Printf("translate pull: store_translation failed: %v", err)
	}
	if err := transcript.AugmentTranslation(subtitleID, targetLang, translated); err != nil {
		log.Printf("translate pull: persist translation failed: %v", err)
	}
	writeJSON(w, map[string]interface{}{"status": "ready", "translated_text": translated})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func parseBoolDefault(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}
