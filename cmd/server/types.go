package main

import (
	"time"

	"github.com/audionautics/wavemark/pkg/wavemark"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// TrackDTO is the wire form of a catalog track.
type TrackDTO struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist,omitempty"`
	Album     string    `json:"album,omitempty"`
	Duration  float64   `json:"duration_seconds,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func trackToDTO(t wavemark.Track) TrackDTO {
	return TrackDTO{
		ID:        t.ID,
		Title:     t.Title,
		Artist:    t.Artist,
		Album:     t.Album,
		Duration:  t.Duration,
		CreatedAt: t.CreatedAt,
	}
}

// ListTracksResponse is the payload of GET /api/v1/tracks.
type ListTracksResponse struct {
	Tracks []TrackDTO `json:"tracks"`
	Count  int        `json:"count"`
}

// IngestResponse is the payload of POST /api/v1/tracks.
type IngestResponse struct {
	Message string   `json:"message"`
	Track   TrackDTO `json:"track"`
}

// DeleteTrackResponse is the payload of DELETE /api/v1/tracks/{id}.
type DeleteTrackResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// MatchDTO is the wire form of one identification candidate.
type MatchDTO struct {
	Track         TrackDTO `json:"track"`
	OffsetSeconds float64  `json:"offset_seconds"`
	Score         int      `json:"score"`
	TotalHashes   int      `json:"total_hashes"`
	Confidence    float64  `json:"confidence"`
	Margin        float64  `json:"margin"`
}

func matchToDTO(m wavemark.Match) MatchDTO {
	return MatchDTO{
		Track:         trackToDTO(m.Track),
		OffsetSeconds: m.OffsetSeconds,
		Score:         m.Score,
		TotalHashes:   m.TotalHashes,
		Confidence:    m.Confidence,
		Margin:        m.Margin,
	}
}

// IdentifyResponse is the payload of POST /api/v1/identify.
type IdentifyResponse struct {
	Matches []MatchDTO `json:"matches"`
	Count   int        `json:"count"`
}

// StatsResponse is the payload of GET /api/v1/stats.
type StatsResponse struct {
	Index struct {
		Tracks      int `json:"tracks"`
		Hashes      int `json:"hashes"`
		Occurrences int `json:"occurrences"`
	} `json:"index"`
	Store *struct {
		Tracks  int `json:"tracks"`
		Entries int `json:"entries"`
	} `json:"store,omitempty"`
}

func statsToResponse(s wavemark.Stats) StatsResponse {
	var resp StatsResponse
	resp.Index.Tracks = s.Index.Tracks
	resp.Index.Hashes = s.Index.Hashes
	resp.Index.Occurrences = s.Index.Occurrences
	if s.Store != nil {
		resp.Store = &struct {
			Tracks  int `json:"tracks"`
			Entries int `json:"entries"`
		}{Tracks: s.Store.Tracks, Entries: s.Store.Entries}
	}
	return resp
}
