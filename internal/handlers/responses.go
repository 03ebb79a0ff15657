package handlers

import (
	"github.com/nfrund/chatroom/internal/domain"
)

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UploadResponse is what a client puts in a media message's content.
type UploadResponse struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// NewUploadResponse creates an UploadResponse from a stored file.
func NewUploadResponse(file *domain.File) *UploadResponse {
	return &UploadResponse{
		URL:      file.URL,
		Name:     file.Filename,
		MIMEType: file.MIMEType,
		Size:     file.Size,
	}
}

// HealthResponse is returned by the health check.
type HealthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
}
