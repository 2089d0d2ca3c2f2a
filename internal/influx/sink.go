package influx

import (
	"compress/gzip"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
)

type point = *write.Point

// serverSink batches points through one non-blocking WriteAPI per bucket.
type serverSink struct {
	client  influxdb2.Client
	writers map[string]api.WriteAPI
}

func newServerSink(client influxdb2.Client, org string, buckets []string, log zerolog.Logger) *serverSink {
	s := &serverSink{client: client, writers: make(map[string]api.WriteAPI, len(buckets))}
	for _, bucket := range buckets {
		w := client.WriteAPI(org, bucket)
		s.writers[bucket] = w
		go func(bucket string, failures <-chan error) {
			for err := range failures {
				log.Error().Err(err).Str("bucket", bucket).Msg("InfluxDB write failed")
			}
		}(bucket, w.Errors())
	}
	return s
}

func (s *serverSink) write(bucket string, p point) error {
	w, ok := s.writers[bucket]
	if !ok {
		return fmt.Errorf("influxdb bucket %q not registered", bucket)
	}
	w.WritePoint(p)
	return nil
}

func (s *serverSink) close() error {
	for _, w := range s.writers {
		w.Flush()
	}
	s.client.Close()
	return nil
}

// backupSink appends line protocol to a gzip file; the bucket is dropped,
// the measurement name tells the rows apart on import.
type backupSink struct {
	mu   sync.Mutex
	file *os.File
	gz   *gzip.Writer
}

func openBackup(path string) (*backupSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening influx backup file: %w", err)
	}
	return &backupSink{file: f, gz: gzip.NewWriter(f)}, nil
}

// write appends one record; PointToLineProtocol terminates it with a newline.
func (s *backupSink) write(_ string, p point) error {
	line := write.PointToLineProtocol(p, time.Nanosecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.gz.Write([]byte(line)); err != nil {
		return fmt.Errorf("writing influx backup: %w", err)
	}
	return nil
}

func (s *backupSink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gzErr := s.gz.Close()
	if err := s.file.Close(); err != nil {
		return err
	}
	return gzErr
}
