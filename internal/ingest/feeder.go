// Package ingest feeds structured collector output into the database.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"aa_exporter/internal/database"
	"aa_exporter/internal/logger"

	"github.com/hashicorp/go-multierror"
	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// maxRecordSize bounds a single JSON line.
const maxRecordSize = 1 << 20

// Stats counts what a feed did.
type Stats struct {
	Records   int // records added to the database
	Malformed int // records skipped
}

func (s *Stats) add(o Stats) {
	s.Records += o.Records
	s.Malformed += o.Malformed
}

// Feeder turns raw records into adapter calls.
type Feeder struct {
	db  *database.Database
	log log.Logger

	recordsTotal   prometheus.Counter
	malformedTotal prometheus.Counter
}

// NewFeeder creates a Feeder for db and registers its counters with reg, if given.
func NewFeeder(db *database.Database, reg prometheus.Registerer) (*Feeder, error) {
	f := &Feeder{
		db:  db,
		log: logger.NewLoggerWithContext("ingest"),
		recordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aa_ingest_log_records_total",
			Help: "Log records added to the database.",
		}),
		malformedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aa_ingest_malformed_records_total",
			Help: "Log records skipped because they could not be parsed.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{f.recordsTotal, f.malformedTotal} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("failed to register ingest metrics: %w", err)
			}
		}
	}
	return f, nil
}

// ingest parses and stores one record.
func (f *Feeder) ingest(raw []byte) error {
	rec, err := database.ParseLogRecord(raw)
	if err != nil {
		f.malformedTotal.Inc()
		return err
	}
	f.db.Log.AddRecord(rec)
	f.recordsTotal.Inc()
	return nil
}

// errRecordTooLong marks a line longer than maxRecordSize. The line is
// discarded up to its newline and counted as malformed.
var errRecordTooLong = fmt.Errorf("%w: record exceeds %d bytes", database.ErrMalformedLogRecord, maxRecordSize)

// readRecord returns the next line of br without its terminator. A line over
// maxRecordSize is consumed entirely and reported with oversized set.
func readRecord(br *bufio.Reader, buf []byte) (line []byte, oversized bool, err error) {
	buf = buf[:0]
	for {
		chunk, err := br.ReadSlice('\n')
		if !oversized {
			if len(buf)+len(chunk) > maxRecordSize+1 {
				oversized = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return buf, oversized, err
	}
}

// ReadLogs reads JSON lines from r until EOF or ctx is done. Malformed and
// oversized lines are logged and skipped; only read errors and cancellation
// end the stream early.
func (f *Feeder) ReadLogs(ctx context.Context, r io.Reader) (Stats, error) {
	var (
		stats Stats
		buf   = make([]byte, 0, 64*1024)
	)
	br := bufio.NewReaderSize(r, 64*1024)

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		data, oversized, readErr := readRecord(br, buf)
		buf = data[:0]

		switch raw := bytes.TrimSpace(data); {
		case oversized:
			f.malformedTotal.Inc()
			stats.Malformed++
			f.log.Warn().Err(errRecordTooLong).Int("line", line).Msg("Skipping malformed log record")
		case len(raw) == 0:
		default:
			if err := f.ingest(raw); err != nil {
				stats.Malformed++
				f.log.Warn().Err(err).Int("line", line).Msg("Skipping malformed log record")
			} else {
				stats.Records++
			}
		}

		if readErr == io.EOF {
			return stats, nil
		}
		if readErr != nil {
			return stats, fmt.Errorf("failed to read log stream: %w", readErr)
		}
	}
}

// Run reads every source concurrently. The first read error cancels the rest.
func (f *Feeder) Run(ctx context.Context, sources ...io.Reader) (Stats, error) {
	var (
		mu    sync.Mutex
		total Stats
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		g.Go(func() error {
			stats, err := f.ReadLogs(ctx, src)
			mu.Lock()
			total.add(stats)
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()
	f.log.Info().
		Int("sources", len(sources)).
		Int("records", total.Records).
		Int("malformed", total.Malformed).
		Msg("Log ingestion finished")
	return total, err
}

// IngestBatch stores every well-formed record and returns how many were
// stored together with the errors of all malformed ones.
func (f *Feeder) IngestBatch(records [][]byte) (int, error) {
	var (
		n    int
		errs = new(multierror.Error)
	)
	for i, raw := range records {
		if err := f.ingest(raw); err != nil {
			errs.Errors = append(errs.Errors, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		n++
	}
	return n, errs.ErrorOrNil()
}

// OpenSource opens a log source by path; "-" is standard input.
func OpenSource(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log source %s: %w", path, err)
	}
	return file, nil
}
