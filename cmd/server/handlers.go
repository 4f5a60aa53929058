package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/audionautics/wavemark/pkg/wavemark"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service wavemark.Service
	config  *ServerConfig
	log     *logrus.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	Backend        string
	TempDir        string
	AllowedOrigins []string
}

// NewServer creates a new server instance
func NewServer(service wavemark.Service, config *ServerConfig, log *logrus.Logger) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     log,
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "wavemark API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":      "GET /health",
			"listTracks":  "GET /api/v1/tracks",
			"ingestTrack": "POST /api/v1/tracks",
			"getTrack":    "GET /api/v1/tracks/{id}",
			"deleteTrack": "DELETE /api/v1/tracks/{id}",
			"identify":    "POST /api/v1/identify",
			"stats":       "GET /api/v1/stats",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleTracks routes requests to /api/v1/tracks
func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListTracks(w, r)
	case http.MethodPost:
		s.handleIngestTrack(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleTrack routes requests to /api/v1/tracks/{id}
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[len("/api/v1/tracks/"):]
	if id == "" {
		s.respondError(w, http.StatusBadRequest, "Track ID required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetTrack(w, r, id)
	case http.MethodDelete:
		s.handleDeleteTrack(w, r, id)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleListTracks handles GET /api/v1/tracks
func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.service.ListTracks(r.Context())
	if err != nil {
		s.log.Errorf("Failed to list tracks: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve tracks")
		return
	}

	dtos := make([]TrackDTO, len(tracks))
	for i, t := range tracks {
		dtos[i] = trackToDTO(t)
	}
	s.respondJSON(w, http.StatusOK, ListTracksResponse{Tracks: dtos, Count: len(dtos)})
}

// handleGetTrack handles GET /api/v1/tracks/{id}
func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request, id string) {
	track, err := s.service.GetTrack(r.Context(), id)
	if errors.Is(err, wavemark.ErrTrackNotFound) {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Track %s not found", id))
		return
	}
	if err != nil {
		s.log.Errorf("Failed to get track %s: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve track")
		return
	}
	s.respondJSON(w, http.StatusOK, trackToDTO(track))
}

// handleDeleteTrack handles DELETE /api/v1/tracks/{id}
func (s *Server) handleDeleteTrack(w http.ResponseWriter, r *http.Request, id string) {
	err := s.service.DeleteTrack(r.Context(), id)
	if errors.Is(err, wavemark.ErrTrackNotFound) {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Track %s not found", id))
		return
	}
	if err != nil {
		s.log.Errorf("Failed to delete track %s: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to delete track")
		return
	}

	s.respondJSON(w, http.StatusOK, DeleteTrackResponse{
		Message: "Track deleted",
		ID:      id,
	})
}

// saveUpload copies the uploaded "audio" form file into the temp directory
// and returns its path. The caller removes the file.
func (s *Server) saveUpload(r *http.Request, prefix string) (string, error) {
	file, header, err := r.FormFile("audio")
	if err != nil {
		return "", fmt.Errorf("audio file is required")
	}
	defer file.Close()

	path := filepath.Join(s.config.TempDir,
		fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), filepath.Base(header.Filename)))
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("saving upload: %w", err)
	}
	return path, nil
}

// handleIngestTrack handles POST /api/v1/tracks (multipart file upload)
func (s *Server) handleIngestTrack(w http.ResponseWriter, r *http.Request) {
	// Max 100MB upload
	if err := r.ParseMultipartForm(100 << 20); err != nil {
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}
	title := r.FormValue("title")
	artist := r.FormValue("artist")

	path, err := s.saveUpload(r, "upload")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(path)

	track, err := s.service.IngestFile(r.Context(), path, title, artist)
	if errors.Is(err, wavemark.ErrUnsupportedFormat) {
		s.respondError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	if err != nil {
		s.log.Errorf("Failed to ingest upload: %v", err)
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to ingest track: %v", err))
		return
	}

	s.respondJSON(w, http.StatusCreated, IngestResponse{
		Message: "Track ingested",
		Track:   trackToDTO(track),
	})
}

// handleIdentify handles POST /api/v1/identify (multipart file upload)
func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	// Max 50MB upload
	if err := r.ParseMultipartForm(50 << 20); err != nil {
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	path, err := s.saveUpload(r, "query")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(path)

	matches, err := s.service.IdentifyFile(r.Context(), path)
	if errors.Is(err, wavemark.ErrUnsupportedFormat) {
		s.respondError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	if err != nil {
		s.log.Errorf("Failed to identify upload: %v", err)
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to identify clip: %v", err))
		return
	}

	dtos := make([]MatchDTO, len(matches))
	for i, m := range matches {
		dtos[i] = matchToDTO(m)
	}
	s.respondJSON(w, http.StatusOK, IdentifyResponse{Matches: dtos, Count: len(dtos)})
}

// handleStats handles GET /api/v1/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.log.Errorf("Failed to read stats: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve stats")
		return
	}
	s.respondJSON(w, http.StatusOK, statsToResponse(stats))
}
