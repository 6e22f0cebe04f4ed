package archive

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/EnzoRigon/udp-client-server/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/n0needt0/go-goodies/log"
	"github.com/pkg/errors"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// parquetSchema matches the keys produced by Envelope.
const parquetSchema = `{"Tag":"name=parquet-go-root","Fields":[` +
	`{"Tag":"name=Timestamp, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN, repetitiontype=OPTIONAL"},` +
	`{"Tag":"name=relay_ip, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN, repetitiontype=OPTIONAL"},` +
	`{"Tag":"name=relay_port, type=INT64, repetitiontype=OPTIONAL"},` +
	`{"Tag":"name=sample_cpu_usage, type=DOUBLE, repetitiontype=OPTIONAL"},` +
	`{"Tag":"name=sample_elapsed, type=DOUBLE, repetitiontype=OPTIONAL"}` +
	`]}`

// ObjectPutter is the part of the minio client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Uploader struct {
	Config *config.Config
	s3     ObjectPutter
}

// NewUploader connects to the configured S3 endpoint.
func NewUploader(conf *config.Config) (*Uploader, error) {
	if conf.S3.Endpoint == "" {
		return nil, errors.New("s3 endpoint is not configured")
	}

	s3Client, err := minio.New(conf.S3.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.S3.AccessKey, conf.S3.SecretKey, ""),
		Secure: conf.S3.Ssl,
		Region: conf.S3.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create S3 client")
	}

	return &Uploader{Config: conf, s3: s3Client}, nil
}

func NewUploaderWithClient(conf *config.Config, s3 ObjectPutter) *Uploader {
	return &Uploader{Config: conf, s3: s3}
}

// Upload ships the batch in every enabled format and removes sources unless told to keep them.
// Each format is attempted even if another fails; the first error is returned.
func (u *Uploader) Upload(ctx context.Context, batch Batch) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if u.Config.Archive.EnableParquetOutput {
		keep(u.uploadParquet(ctx, batch))
	}
	if u.Config.Archive.EnableJsonOutput {
		keep(u.uploadJson(ctx, batch))
	}

	if !u.Config.Archive.KeepJsonSource {
		if err := os.Remove(batch.DataFile); err != nil {
			log.Warnf("Failed to remove source file %s: %v", batch.DataFile, err)
		}
	}
	return firstErr
}

func (u *Uploader) objectKey(format, timestamp, ext string) string {
	return fmt.Sprintf("%s/%s/%s/%s.%s", u.Config.Archive.Prefix, time.Now().UTC().Format("2006-01-02"), format, timestamp, ext)
}

func (u *Uploader) uploadJson(ctx context.Context, batch Batch) error {
	data, err := os.ReadFile(batch.DataFile)
	if err != nil {
		return errors.Wrap(err, "failed to read file for upload")
	}

	objectKey := u.objectKey("json", batch.Timestamp, "ndjson")
	contentType := "application/x-ndjson"

	if u.Config.S3.Compression {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(data); err != nil {
			gz.Close()
			return errors.Wrap(err, "failed to gzip file")
		}
		if err := gz.Close(); err != nil {
			return errors.Wrap(err, "failed to gzip file")
		}
		data = buf.Bytes()
		objectKey += ".gz"
		contentType = "application/gzip"
	}

	_, err = u.s3.PutObject(ctx, u.Config.S3.BucketName, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return errors.Wrapf(err, "failed to upload %s", objectKey)
	}
	log.Infof("Uploaded file %s to S3 successfully", objectKey)
	return nil
}

// WriteParquet converts an NDJSON batch file to a gzip compressed parquet file next to it.
func WriteParquet(dataFile string) (string, int, error) {
	outPath := dataFile + ".parquet"
	fw, err := local.NewLocalFileWriter(outPath)
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to create parquet file")
	}
	defer fw.Close()

	pw, err := writer.NewJSONWriter(parquetSchema, fw, 4)
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to create parquet json writer")
	}
	pw.CompressionType = parquet.CompressionCodec_GZIP

	src, err := os.Open(dataFile)
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to open source file for parquet conversion")
	}
	defer src.Close()

	scanner := bufio.NewScanner(src)
	rows := 0
	for scanner.Scan() {
		if err := pw.Write(scanner.Text()); err != nil {
			log.Errorf("Error writing record to parquet: %v", err)
			continue
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		log.Errorf("Error reading source file: %v", err)
	}

	if err := pw.WriteStop(); err != nil {
		return "", 0, errors.Wrap(err, "parquet write stop failed")
	}
	return outPath, rows, nil
}

func (u *Uploader) uploadParquet(ctx context.Context, batch Batch) error {
	outPath, rows, err := WriteParquet(batch.DataFile)
	if err != nil {
		return err
	}
	if rows == 0 {
		log.Warn("No records written to parquet file")
	} else {
		log.Debugf("Wrote %d rows to %s", rows, outPath)
	}

	if !u.Config.Archive.KeepParquetSource {
		defer os.Remove(outPath)
	}

	pfile, err := os.Open(outPath)
	if err != nil {
		return errors.Wrap(err, "failed to open parquet file for upload")
	}
	defer pfile.Close()

	stat, err := pfile.Stat()
	if err != nil {
		return errors.Wrap(err, "failed to stat parquet file")
	}

	objectKey := u.objectKey("parquet", batch.Timestamp, "parquet")
	_, err = u.s3.PutObject(ctx, u.Config.S3.BucketName, objectKey, pfile, stat.Size(), minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return errors.Wrapf(err, "failed to upload %s", objectKey)
	}
	log.Infof("Uploaded parquet file %s to S3 successfully", objectKey)
	return nil
}
