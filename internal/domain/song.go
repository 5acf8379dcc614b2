package domain

import "time"

// Song is a stored audio asset owned by a single user.
type Song struct {
	ID        string
	Title     string
	Artist    *string
	Album     *string
	Duration  *int
	CoverArt  *string
	FileName  string
	UserID    string
	CreatedAt time.Time
}

// OwnedBy reports whether the song belongs to the given user.
func (s *Song) OwnedBy(userID string) bool {
	return s != nil && userID != "" && s.UserID == userID
}

// TrackMetadata is the canonical description of an external track.
type TrackMetadata struct {
	Title           string
	Artist          string
	Album           string
	DurationSeconds int
	CoverArtURL     *string
}
