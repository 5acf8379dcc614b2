package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"music-locker/internal/domain"
	"music-locker/internal/downloader"
	"music-locker/internal/repository"
	"music-locker/internal/transcode"
)

type SongResponse struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Artist    *string `json:"artist"`
	Album     *string `json:"album"`
	Duration  *int    `json:"duration"`
	CoverArt  *string `json:"cover_art"`
	FileName  string  `json:"file_name"`
	UserID    string  `json:"user_id"`
	CreatedAt string  `json:"created_at"`
}

func songToResponse(song domain.Song) SongResponse {
	return SongResponse{
		ID:        song.ID,
		Title:     song.Title,
		Artist:    song.Artist,
		Album:     song.Album,
		Duration:  song.Duration,
		CoverArt:  song.CoverArt,
		FileName:  song.FileName,
		UserID:    song.UserID,
		CreatedAt: song.CreatedAt.Format(time.RFC3339),
	}
}

type importRequest struct {
	ExternalURL string `json:"external_url" binding:"required"`
}

func (h *Handler) listSongs(c *gin.Context) {
	user, ok := h.authenticate(c)
	if !ok {
		return
	}

	songs, err := h.songs.List(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Errorf("list songs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list songs"})
		return
	}

	resp := make([]SongResponse, len(songs))
	for i := range songs {
		resp[i] = songToResponse(songs[i])
	}
	c.JSON(http.StatusOK, gin.H{"assets": resp})
}

func (h *Handler) uploadSong(c *gin.Context) {
	user, ok := h.authenticate(c)
	if !ok {
		return
	}

	if c.Request.ContentLength > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes)})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", tooLarge.Limit)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
		return
	}
	if strings.TrimSpace(header.Filename) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file selected"})
		return
	}

	file, err := header.Open()
	if err != nil {
		h.logger.Errorf("open uploaded file: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
		return
	}
	defer file.Close()

	song, err := h.acquirer.Ingest(c.Request.Context(), downloader.Upload{
		Filename: header.Filename,
		Title:    c.PostForm("title"),
		Body:     file,
	}, user)
	if err != nil {
		switch {
		case errors.Is(err, downloader.ErrUnsupportedUpload), errors.Is(err, downloader.ErrEmptyUpload):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Errorf("store upload: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store upload"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"asset": songToResponse(*song)})
}

func (h *Handler) importSong(c *gin.Context) {
	user, ok := h.authenticate(c)
	if !ok {
		return
	}

	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ExternalURL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "external_url is required"})
		return
	}

	song, err := h.acquirer.Acquire(c.Request.Context(), strings.TrimSpace(req.ExternalURL), user)
	if err != nil {
		var acqErr *downloader.AcquisitionError
		if errors.As(err, &acqErr) {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": fmt.Sprintf("%v (stage: %s)", acqErr.Kind, acqErr.Stage),
				"stage": acqErr.Stage,
			})
			return
		}
		h.logger.Errorf("import song: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "import failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"asset": songToResponse(*song)})
}

func (h *Handler) streamSong(c *gin.Context) {
	user, ok := h.authenticate(c)
	if !ok {
		return
	}

	song, err := h.songs.Get(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		h.respondLookupError(c, err)
		return
	}

	path, err := h.files.Path(song.FileName)
	if err != nil {
		h.logger.WithField("song_id", song.ID).Errorf("resolve stored file: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stored file is unavailable"})
		return
	}

	stream, err := h.streamer.Open(c.Request.Context(), path, c.Query("format"))
	if err != nil {
		switch {
		case errors.Is(err, transcode.ErrUnsupportedFormat):
			c.JSON(http.StatusBadRequest, gin.H{"error": unsupportedFormatMessage()})
		case errors.Is(err, transcode.ErrSourceMissing):
			h.logger.WithField("song_id", song.ID).Errorf("stored file missing: %v", err)
			c.JSON(http.StatusNotFound, gin.H{"error": "song file not found"})
		case errors.Is(err, transcode.ErrConversionFailed):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "conversion failed"})
		default:
			h.logger.WithField("song_id", song.ID).Errorf("open stream: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not stream song"})
		}
		return
	}
	// removes the converted artifact after the body is sent or the client goes away
	defer stream.Close()

	c.Header("Content-Type", stream.ContentType)
	c.FileAttachment(stream.Path, attachmentName(song.Title, stream.Format))
}

func (h *Handler) deleteSong(c *gin.Context) {
	user, ok := h.authenticate(c)
	if !ok {
		return
	}

	warnings, err := h.songs.Delete(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		h.respondLookupError(c, err)
		return
	}

	resp := gin.H{}
	if len(warnings) > 0 {
		resp["warnings"] = warnings
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) respondLookupError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "song not found"})
		return
	}
	h.logger.Errorf("song lookup: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load song"})
}

func unsupportedFormatMessage() string {
	names := make([]string, 0, len(transcode.Formats()))
	for _, f := range transcode.Formats() {
		names = append(names, string(f))
	}
	return "unsupported format, expected one of: " + strings.Join(names, ", ")
}

func attachmentName(title string, format transcode.Format) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', '\r', '\n':
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		name = "track"
	}
	return name + format.Ext()
}
