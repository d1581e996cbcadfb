package writer

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "github.com/ehutt/rent-radar/config"
	"github.com/ehutt/rent-radar/internal/channel"
	"github.com/ehutt/rent-radar/logger"
	"github.com/ehutt/rent-radar/models"
)

// snapshotRecord defines the parquet schema for archived listing
// snapshots. Prices are stored as DOUBLE for analytics friendliness; the
// exact decimal values live in the violation store.
type snapshotRecord struct {
	ListingID     string  `parquet:"name=listing_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ZipCode       string  `parquet:"name=zip_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	Bedrooms      int32   `parquet:"name=bedrooms, type=INT32"`
	CurrentPrice  float64 `parquet:"name=current_price, type=DOUBLE"`
	Furnished     bool    `parquet:"name=furnished, type=BOOLEAN"`
	FirstSeenDate int64   `parquet:"name=first_seen_date, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	HistoryCount  int32   `parquet:"name=history_count, type=INT32"`
	AccessedDate  int64   `parquet:"name=accessed_date, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	City          string  `parquet:"name=city, type=BYTE_ARRAY, convertedtype=UTF8"`
	State         string  `parquet:"name=state, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// memFileWriter adapts a byte buffer to the parquet source interface so
// files are assembled in memory before upload.
type memFileWriter struct{ buffer *bytes.Buffer }

func newMemFileWriter() *memFileWriter { return &memFileWriter{buffer: &bytes.Buffer{}} }

func (m *memFileWriter) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFileWriter) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFileWriter) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFileWriter) Read([]byte) (int, error)                  { return 0, nil }
func (m *memFileWriter) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFileWriter) Close() error                              { return nil }
func (m *memFileWriter) Bytes() []byte                             { return m.buffer.Bytes() }

// ArchiveWriter consumes snapshot batches and writes them to S3 in parquet
// format, partitioned by city and accessed date, so every evaluated listing
// is auditable after the fact.
type ArchiveWriter struct {
	cfg      *appconfig.Config
	channels *channel.Channels
	s3Client *s3.Client
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.Mutex
	running  bool
	log      *logger.Log
}

// NewArchiveWriter initializes an archive writer with AWS credentials.
func NewArchiveWriter(cfg *appconfig.Config, ch *channel.Channels) (*ArchiveWriter, error) {
	log := logger.GetLogger()
	ctx := context.Background()
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Storage.S3.Region)}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})
	return &ArchiveWriter{
		cfg:      cfg,
		channels: ch,
		s3Client: s3Client,
		wg:       &sync.WaitGroup{},
		log:      log,
	}, nil
}

// Start launches the upload worker.
func (w *ArchiveWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("archive writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	w.wg.Add(1)
	go w.worker()

	w.log.WithComponent("archive_writer").Info("archive writer started")
	return nil
}

// Stop waits for the worker to finish draining the archive channel.
func (w *ArchiveWriter) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()
	w.log.WithComponent("archive_writer").Info("archive writer stopped")
}

func (w *ArchiveWriter) worker() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case batch, ok := <-w.channels.Archive:
			if !ok {
				return
			}
			w.writeBatch(batch)
		}
	}
}

func (w *ArchiveWriter) writeBatch(batch models.SnapshotBatch) {
	data, err := createParquet(batch.Snapshots)
	if err != nil {
		w.log.WithComponent("archive_writer").WithError(err).Error("create parquet failed")
		return
	}
	key := w.s3Key(batch)
	if err := w.upload(key, data); err != nil {
		w.log.WithComponent("archive_writer").WithError(err).Error("upload to s3 failed")
		return
	}
	logger.IncrementArchiveUpload(int64(len(data)))
	w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"s3_key":  key,
		"records": len(batch.Snapshots),
		"bytes":   len(data),
	}).Info("snapshot batch uploaded")
}

func createParquet(snapshots []models.Snapshot) ([]byte, error) {
	mw := newMemFileWriter()
	pw, err := writer.NewParquetWriter(mw, new(snapshotRecord), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, s := range snapshots {
		price, _ := s.CurrentPrice.Float64()
		rec := snapshotRecord{
			ListingID:     s.ListingID,
			ZipCode:       s.ZipCode,
			Bedrooms:      int32(s.Bedrooms),
			CurrentPrice:  price,
			Furnished:     s.Furnished,
			FirstSeenDate: s.FirstSeenDate.UnixMilli(),
			HistoryCount:  int32(len(s.PriceHistory)),
			AccessedDate:  s.AccessedDate.UnixMilli(),
			City:          s.City,
			State:         s.State,
		}
		if err := pw.Write(rec); err != nil {
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return mw.Bytes(), nil
}

func (w *ArchiveWriter) upload(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(w.cfg.Storage.S3.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	_, err := w.s3Client.PutObject(w.ctx, input)
	return err
}

func (w *ArchiveWriter) s3Key(batch models.SnapshotBatch) string {
	timestamp := batch.Timestamp
	parts := []string{
		"listings",
		fmt.Sprintf("state=%s", batch.State),
		fmt.Sprintf("city=%s", sanitizePartition(batch.City)),
		fmt.Sprintf("year=%04d", timestamp.Year()),
		fmt.Sprintf("month=%02d", int(timestamp.Month())),
		fmt.Sprintf("day=%02d", timestamp.Day()),
	}
	filename := fmt.Sprintf("snapshots_%s.parquet", batch.BatchID)
	return filepath.ToSlash(filepath.Join(append(parts, filename)...))
}

// sanitizePartition makes a city name safe for use in an S3 key partition.
func sanitizePartition(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}
