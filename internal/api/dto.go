package api

import (
	"time"

	"github.com/samcharles93/psbkit/pkg/psb"
)

// DocumentInfo summarizes a decoded document.
type DocumentInfo struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name,omitempty"`
	CreatedAt   int64           `json:"created_at,omitempty"`
	Version     uint16          `json:"version"`
	Checksum    uint32          `json:"checksum,omitempty"`
	Platform    psb.Spec        `json:"platform"`
	PixelFormat psb.PixelFormat `json:"pixel_format"`
	Extension   string          `json:"extension,omitempty"`
	Names       int             `json:"names"`
	Strings     int             `json:"strings"`
	Resources   int             `json:"resources"`
	ResourceLen int             `json:"resource_bytes"`
	Keys        []string        `json:"keys"`
}

func describe(doc *psb.Document) DocumentInfo {
	info := DocumentInfo{
		Version:     doc.Header.Version,
		Checksum:    doc.Header.Checksum,
		Platform:    doc.Platform(),
		PixelFormat: doc.Platform().PixelFormat(),
		Extension:   doc.Extension(),
		Names:       len(doc.Names),
		Strings:     len(doc.Strings),
		Resources:   len(doc.Resources),
		Keys:        doc.Objects.Keys(),
	}
	for _, r := range doc.Resources {
		info.ResourceLen += len(r.Data)
	}
	return info
}

func describeRecord(rec *documentRecord) DocumentInfo {
	info := describe(rec.Document)
	info.ID = rec.ID
	info.Name = rec.Name
	info.CreatedAt = rec.CreatedAt.Unix()
	return info
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Documents int    `json:"documents"`
	Uptime    string `json:"uptime"`
}

func uptime(since, now time.Time) string {
	return now.Sub(since).Truncate(time.Second).String()
}
