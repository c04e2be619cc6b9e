package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"journalread/internal/dto"
	"journalread/internal/filter"
	"journalread/internal/model"
	"journalread/internal/parser"
	"journalread/internal/source"
)

// RecordHandler receives each record that passed the filter together with
// the file it came from. Returning an error stops the sequence.
type RecordHandler func(path string, rec *model.LogRecord) error

type ReadStats struct {
	FilesOpened int
	Emitted     int
	Excluded    int
	Duration    time.Duration
}

type JournalReaderService interface {
	// Open returns a cursor over the filtered records of paths, in argument
	// order. The caller must Close it.
	Open(ctx context.Context, paths []string, spec dto.FilterSpec) *Sequence
	// Stream drives a Sequence to completion, handing every record to fn.
	Stream(ctx context.Context, paths []string, spec dto.FilterSpec, fn RecordHandler) (ReadStats, error)
}

type journalReaderService struct {
	opener      source.Opener
	decoderOpts []parser.DecoderOption
}

func NewJournalReaderService(opener source.Opener, decoderOpts ...parser.DecoderOption) JournalReaderService {
	return &journalReaderService{
		opener:      opener,
		decoderOpts: decoderOpts,
	}
}

func (s *journalReaderService) Open(ctx context.Context, paths []string, spec dto.FilterSpec) *Sequence {
	return &Sequence{
		ctx:         ctx,
		opener:      s.opener,
		decoderOpts: s.decoderOpts,
		paths:       paths,
		spec:        spec,
		counter:     filter.NewCounter(spec),
	}
}

func (s *journalReaderService) Stream(ctx context.Context, paths []string, spec dto.FilterSpec, fn RecordHandler) (ReadStats, error) {
	startTime := time.Now()
	seq := s.Open(ctx, paths, spec)
	defer seq.Close()

	for {
		rec, err := seq.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return seq.stats(startTime), err
		}
		if err := fn(seq.Path(), rec); err != nil {
			return seq.stats(startTime), err
		}
	}

	stats := seq.stats(startTime)
	log.Debug().
		Int("files_opened", stats.FilesOpened).
		Int("emitted", stats.Emitted).
		Int("excluded", stats.Excluded).
		Dur("duration", stats.Duration).
		Msg("Finished reading export files")
	return stats, nil
}

// Sequence concatenates the filtered records of several export files. Files
// are opened one at a time, only when the previous one is exhausted, and the
// count limit is shared across all of them. After the first error every call
// to Next returns it.
type Sequence struct {
	ctx         context.Context
	opener      source.Opener
	decoderOpts []parser.DecoderOption
	paths       []string
	spec        dto.FilterSpec
	counter     *filter.Counter

	next     int
	path     string
	stream   *source.Stream
	reader   *filter.Reader
	opened   int
	excluded int
	err      error
}

func (s *Sequence) Next() (*model.LogRecord, error) {
	for {
		if s.err != nil {
			return nil, s.err
		}
		if err := s.ctx.Err(); err != nil {
			return nil, s.fail(err)
		}
		if s.counter.Exhausted() {
			log.Debug().Int("emitted", s.counter.Emitted()).Msg("Record limit reached")
			return nil, s.fail(io.EOF)
		}

		if s.reader == nil {
			if s.next >= len(s.paths) {
				return nil, s.fail(io.EOF)
			}
			if err := s.openFile(s.paths[s.next]); err != nil {
				return nil, s.fail(err)
			}
			s.next++
		}

		rec, err := s.reader.Next()
		if err == io.EOF {
			s.closeFile()
			continue
		}
		if err != nil {
			// Decode and source errors already name the file.
			return nil, s.fail(err)
		}
		return rec, nil
	}
}

// Path is the file the most recently returned record was read from.
func (s *Sequence) Path() string {
	return s.path
}

func (s *Sequence) Emitted() int {
	return s.counter.Emitted()
}

// Close releases the file currently open, if any.
func (s *Sequence) Close() error {
	if s.err == nil {
		s.err = errors.New("sequence closed")
	}
	return s.closeFile()
}

func (s *Sequence) openFile(path string) error {
	stream, err := s.opener.Open(path)
	if err != nil {
		return err
	}
	log.Debug().Str("file", path).Str("compression", string(stream.Compression)).Msg("Reading export file")
	s.path = path
	s.stream = stream
	s.reader = filter.NewReader(parser.NewExportDecoder(stream, path, s.decoderOpts...), s.spec, s.counter)
	s.opened++
	return nil
}

func (s *Sequence) closeFile() error {
	if s.stream == nil {
		return nil
	}
	s.excluded += s.reader.Excluded()
	err := s.stream.Close()
	if err != nil {
		log.Warn().Err(err).Str("file", s.path).Msg("Failed to close export file")
	}
	s.stream = nil
	s.reader = nil
	return err
}

func (s *Sequence) fail(err error) error {
	s.closeFile()
	s.err = err
	return err
}

func (s *Sequence) stats(start time.Time) ReadStats {
	excluded := s.excluded
	if s.reader != nil {
		excluded += s.reader.Excluded()
	}
	return ReadStats{
		FilesOpened: s.opened,
		Emitted:     s.counter.Emitted(),
		Excluded:    excluded,
		Duration:    time.Since(start),
	}
}
