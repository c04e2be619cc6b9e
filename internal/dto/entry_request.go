package dto

import "time"

type EntryQueryRequest struct {
	Files  []string
	Filter FilterSpec
	Output string
}

type ExportFileInfo struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"modTime"`
	Compression string    `json:"compression"`
}

type ExportFileListResponse struct {
	Directory string           `json:"directory"`
	Files     []ExportFileInfo `json:"files"`
}
