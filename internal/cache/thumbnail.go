package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"demosync/internal/demo"
)

// Thumbnail is the overview subset cached per document so document lists can
// render without loading full bodies.
type Thumbnail struct {
	Headline       string      `json:"headline"`
	ThumbnailImage string      `json:"thumbnailImage"`
	GradientID     string      `json:"gradientId"`
	ImageOffset    demo.Offset `json:"imageOffset"`
}

// GetThumbnail returns the cached thumbnail for id, if any. Corrupt cache
// entries are treated as absent; this is a cache, never authoritative.
func (s *Store) GetThumbnail(id string) (*Thumbnail, bool) {
	var raw string
	err := s.db.QueryRow(`SELECT data FROM thumbnails WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("thumbnail read failed", "id", id, "error", err)
		return nil, false
	}

	var t Thumbnail
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, false
	}
	return &t, true
}

// SetThumbnail caches the thumbnail subset of overview for id.
func (s *Store) SetThumbnail(id string, overview demo.Overview) error {
	t := Thumbnail{
		Headline:       overview.Headline,
		ThumbnailImage: overview.ThumbnailImage,
		GradientID:     overview.GradientID,
		ImageOffset:    overview.ImageOffset,
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding thumbnail: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO thumbnails (id, data) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET data = excluded.data`,
		id, string(payload))
	if err != nil {
		return fmt.Errorf("writing thumbnail: %w", err)
	}
	return nil
}

// ClearThumbnails drops every cached thumbnail.
func (s *Store) ClearThumbnails() error {
	if _, err := s.db.Exec(`DELETE FROM thumbnails`); err != nil {
		return fmt.Errorf("clearing thumbnails: %w", err)
	}
	return nil
}
