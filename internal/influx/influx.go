// Package influx records engine performance points in InfluxDB, falling
// back to a gzipped line protocol file when the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Bucket names.
const (
	PerformanceBucket = "engine_performance"
	ActivityBucket    = "board_activity"
)

var buckets = []string{PerformanceBucket, ActivityBucket}

// ErrDisabled is returned by Connect when influx.enabled is false.
var ErrDisabled = errors.New("influx is disabled")

// Config describes the InfluxDB server.
type Config struct {
	Enabled       bool
	URL           string
	Token         string
	Org           string
	Retention     time.Duration
	BatchSize     uint
	FlushInterval time.Duration
}

// ConfigFromViper reads the influx.* keys.
func ConfigFromViper() Config {
	return Config{
		Enabled: viper.GetBool("influx.enabled"),
		URL: fmt.Sprintf("%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port")),
		Token:         viper.GetString("influx.token"),
		Org:           viper.GetString("influx.org"),
		Retention:     viper.GetDuration("influx.retention"),
		BatchSize:     viper.GetUint("influx.batchSize"),
		FlushInterval: viper.GetDuration("influx.flushInterval"),
	}
}

// sink receives finished points.
type sink interface {
	write(bucket string, p *influxdb2_write.Point) error
	close() error
}

// Manager writes gesture and status points. It is safe for concurrent use.
type Manager struct {
	cfg        Config
	log        zerolog.Logger
	backupPath string

	mu     sync.Mutex
	client influxdb2.Client
	out    sink
}

func NewManager(cfg Config, log zerolog.Logger, backupPath string) *Manager {
	return &Manager{cfg: cfg, log: log, backupPath: backupPath}
}

// Online reports whether points go to the server rather than the backup file.
func (m *Manager) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.out.(*remoteSink)
	return ok
}

// Connect pings the server and prepares the org and buckets. When the
// server does not answer, points are appended to the backup file instead.
func (m *Manager) Connect() error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	opts := influxdb2.DefaultOptions()
	if m.cfg.BatchSize > 0 {
		opts.SetBatchSize(m.cfg.BatchSize)
	}
	if m.cfg.FlushInterval > 0 {
		opts.SetFlushInterval(uint(m.cfg.FlushInterval.Milliseconds()))
	}
	client := influxdb2.NewClientWithOptions(m.cfg.URL, m.cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if up, err := client.Ping(ctx); err != nil || !up {
		client.Close()
		m.log.Warn().Err(err).Str("backupPath", m.backupPath).Msg("InfluxDB unreachable, writing to backup file")
		backup, err := openBackup(m.backupPath)
		if err != nil {
			return err
		}
		m.setSink(nil, backup)
		return nil
	}

	if err := m.ensureBuckets(ctx, client); err != nil {
		client.Close()
		return err
	}
	m.setSink(client, newRemoteSink(client, m.cfg.Org, m.log))
	m.log.Info().Str("url", m.cfg.URL).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) setSink(client influxdb2.Client, s sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client, m.out = client, s
}

func (m *Manager) ensureBuckets(ctx context.Context, client influxdb2.Client) error {
	orgs := client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.log.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		if org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org); err != nil {
			return fmt.Errorf("creating organization %s: %w", m.cfg.Org, err)
		}
	}

	rule := domain.RetentionRuleTypeExpire
	retention := domain.RetentionRule{Type: &rule, EverySeconds: int64(m.cfg.Retention.Seconds())}
	for _, b := range buckets {
		if _, err := client.BucketsAPI().FindBucketByName(ctx, b); err == nil {
			continue
		}
		m.log.Info().Str("bucket", b).Msg("Bucket not found, creating")
		if _, err := client.BucketsAPI().CreateBucketWithName(ctx, org, b, retention); err != nil {
			return fmt.Errorf("creating bucket %s: %w", b, err)
		}
	}
	return nil
}

func (m *Manager) write(bucket string, p *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.out == nil {
		return errors.New("influx not connected")
	}
	return m.out.write(bucket, p)
}

// RecordGesture writes one finished drag or transform gesture.
func (m *Manager) RecordGesture(boardID, kind string, updates int, duration time.Duration, at time.Time) error {
	return m.write(PerformanceBucket, GesturePoint(boardID, kind, updates, duration, at))
}

// RecordStatus writes one status sample of the open board.
func (m *Manager) RecordStatus(boardID string, objects, pendingRevisions int, lastWrite time.Duration, at time.Time) error {
	return m.write(ActivityBucket, StatusPoint(boardID, objects, pendingRevisions, lastWrite, at))
}

// GesturePoint builds the point for one gesture.
func GesturePoint(boardID, kind string, updates int, duration time.Duration, at time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement("gesture").
		AddTag("board", boardID).
		AddTag("kind", kind).
		AddField("updates", updates).
		AddField("duration_ms", millis(duration)).
		SetTime(at)
}

// StatusPoint builds the point for one status sample.
func StatusPoint(boardID string, objects, pendingRevisions int, lastWrite time.Duration, at time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement("board_status").
		AddTag("board", boardID).
		AddField("objects", objects).
		AddField("pending_revisions", pendingRevisions).
		AddField("last_write_ms", millis(lastWrite)).
		SetTime(at)
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// Close flushes pending points and releases the client or backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.out != nil {
		err = m.out.close()
	}
	if m.client != nil {
		m.client.Close()
	}
	m.client, m.out = nil, nil
	return err
}

// remoteSink writes through one non-blocking WriteAPI per bucket.
type remoteSink struct {
	writers map[string]influxdb2_api.WriteAPI
}

func newRemoteSink(client influxdb2.Client, org string, log zerolog.Logger) *remoteSink {
	s := &remoteSink{writers: make(map[string]influxdb2_api.WriteAPI, len(buckets))}
	for _, b := range buckets {
		w := client.WriteAPI(org, b)
		s.writers[b] = w
		go func(bucket string, errs <-chan error) {
			for err := range errs {
				log.Error().Err(err).Str("bucket", bucket).Msg("Error sending data to InfluxDB")
			}
		}(b, w.Errors())
	}
	return s
}

func (s *remoteSink) write(bucket string, p *influxdb2_write.Point) error {
	w, ok := s.writers[bucket]
	if !ok {
		return fmt.Errorf("influx bucket %q not registered", bucket)
	}
	w.WritePoint(p)
	return nil
}

func (s *remoteSink) close() error {
	for _, w := range s.writers {
		w.Flush()
	}
	return nil
}

// backupSink appends line protocol to a gzip file for a later import.
type backupSink struct {
	file *os.File
	gz   *gzip.Writer
}

func openBackup(path string) (*backupSink, error) {
	if path == "" {
		return nil, errors.New("influx backup path not set")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("error creating backup file: %w", err)
	}
	return &backupSink{file: f, gz: gzip.NewWriter(f)}, nil
}

func (s *backupSink) write(_ string, p *influxdb2_write.Point) error {
	line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
	if _, err := s.gz.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

func (s *backupSink) close() error {
	return errors.Join(s.gz.Close(), s.file.Close())
}
