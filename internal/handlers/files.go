package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"scanhub/internal/models"
)

type fileResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Key          string    `json:"key"`
	Bucket       string    `json:"bucket"`
	URL          string    `json:"url"`
	Type         string    `json:"type"`
	Mimetype     string    `json:"mimetype"`
	Size         int64     `json:"size"`
	ThumbnailURL string    `json:"thumbnail_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toFileResponse(f models.File) fileResponse {
	return fileResponse{
		ID:           f.ID,
		Name:         f.Name,
		Key:          f.Key,
		Bucket:       f.Bucket,
		URL:          f.URL,
		Type:         string(f.Type),
		Mimetype:     f.Mimetype,
		Size:         f.Size,
		ThumbnailURL: f.ThumbnailURL,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

func (h HandlerSet) RetrieveFile(c *gin.Context) {
	file, err := h.deps.Files.Retrieve(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toFileResponse(file))
}
