package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"journalread/config"
	"journalread/internal/dto"
	"journalread/internal/formatter"
	"journalread/internal/model"
	"journalread/internal/source"
)

var (
	ErrInvalidFileName = errors.New("invalid export file name")
	ErrFileNotFound    = errors.New("export file not found")
)

type EntryQueryService interface {
	ListFiles(ctx context.Context) (*dto.ExportFileListResponse, error)
	// ResolveFiles maps file names to paths inside the export directory.
	ResolveFiles(names []string) ([]string, error)
	// StreamEntries renders the filtered records of paths to w. When w
	// implements Flush it is flushed after every record.
	StreamEntries(ctx context.Context, paths []string, spec dto.FilterSpec, f formatter.Formatter, w io.Writer) (ReadStats, error)
}

type entryQueryService struct {
	dir    string
	opener source.Opener
	reader JournalReaderService
}

func NewEntryQueryService(cfg *config.Config, opener source.Opener, reader JournalReaderService) EntryQueryService {
	return &entryQueryService{
		dir:    cfg.Server.ExportDirectory,
		opener: opener,
		reader: reader,
	}
}

func (s *entryQueryService) ListFiles(ctx context.Context) (*dto.ExportFileListResponse, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read export directory: %w", err)
	}

	resp := &dto.ExportFileListResponse{
		Directory: s.dir,
		Files:     []dto.ExportFileInfo{},
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			log.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to stat export file")
			continue
		}
		compression, err := s.sniff(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			log.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to sniff export file")
			continue
		}
		resp.Files = append(resp.Files, dto.ExportFileInfo{
			Name:        entry.Name(),
			Size:        info.Size(),
			ModTime:     info.ModTime().UTC(),
			Compression: string(compression),
		})
	}
	sort.Slice(resp.Files, func(i, j int) bool { return resp.Files[i].Name < resp.Files[j].Name })
	return resp, nil
}

func (s *entryQueryService) sniff(path string) (source.Compression, error) {
	stream, err := s.opener.Open(path)
	if err != nil {
		return "", err
	}
	defer stream.Close()
	return stream.Compression, nil
}

func (s *entryQueryService) ResolveFiles(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no files given", ErrInvalidFileName)
	}
	paths := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" || name == "." || name == ".." ||
			strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFileName, name)
		}
		path := filepath.Join(s.dir, name)
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
			}
			return nil, fmt.Errorf("failed to stat %s: %w", name, err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

type flusher interface {
	Flush()
}

func (s *entryQueryService) StreamEntries(ctx context.Context, paths []string, spec dto.FilterSpec, f formatter.Formatter, w io.Writer) (ReadStats, error) {
	fl, canFlush := w.(flusher)
	return s.reader.Stream(ctx, paths, spec, func(path string, rec *model.LogRecord) error {
		if err := f.Format(w, rec); err != nil {
			return err
		}
		if canFlush {
			fl.Flush()
		}
		return nil
	})
}
