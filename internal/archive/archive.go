// Package archive ships the relay's metric history to S3 compatible storage on each
// housekeeping tick, as NDJSON and/or Parquet.
package archive

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/EnzoRigon/udp-client-server/internal/config"
	"github.com/EnzoRigon/udp-client-server/internal/domain"
	"github.com/EnzoRigon/udp-client-server/internal/services"
	"github.com/bytedance/sonic/encoder"
	flatten "github.com/jeremywohl/flatten"
	"github.com/n0needt0/go-goodies/log"
	"github.com/pkg/errors"
)

// Batch is one flushed slice of history waiting for upload.
type Batch struct {
	DataFile  string
	Timestamp string
	Rows      int
}

type Archiver struct {
	Services *services.Services
	Config   *config.Config
	Uploader *Uploader

	mux    sync.Mutex
	offset int
}

func NewArchiver(svc *services.Services, uploader *Uploader) *Archiver {
	return &Archiver{
		Services: svc,
		Config:   svc.Config,
		Uploader: uploader,
	}
}

// Envelope flattens one sample together with the relay it was collected by.
func Envelope(sample domain.MetricSample, relay config.Relay) (map[string]interface{}, error) {
	nested := map[string]interface{}{
		"sample": map[string]interface{}{
			"elapsed":   sample.Elapsed,
			"cpu_usage": sample.CPUUsage,
		},
		"relay": map[string]interface{}{
			"ip":   relay.IP,
			"port": relay.Port,
		},
	}

	flat, err := flatten.Flatten(nested, "", flatten.UnderscoreStyle)
	if err != nil {
		return nil, err
	}

	envelope := map[string]interface{}{
		"Timestamp": sample.At.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range flat {
		envelope[k] = v
	}
	return envelope, nil
}

// Flush writes every sample appended since the previous flush and hands the file to the
// uploader. The offset only advances once the batch file is written.
func (a *Archiver) Flush(ctx context.Context) error {
	a.mux.Lock()
	defer a.mux.Unlock()

	samples, next := a.Services.History.Since(a.offset)
	if len(samples) == 0 {
		log.Debug("archive: nothing new to flush")
		return nil
	}

	batch, err := a.WriteBatch(samples)
	if err != nil {
		return err
	}
	a.offset = next

	log.Infof("archive: wrote %d samples to %s", batch.Rows, batch.DataFile)

	if a.Uploader == nil {
		return nil
	}
	return a.Uploader.Upload(ctx, batch)
}

// WriteBatch encodes samples as sorted-key NDJSON envelopes into the archive directory.
func (a *Archiver) WriteBatch(samples []domain.MetricSample) (Batch, error) {
	ts := fmt.Sprintf("%d", time.Now().UnixNano())
	path := filepath.Join(a.Config.Archive.Directory, fmt.Sprintf("%s-%s.ndjson", a.Config.Archive.Prefix, ts))

	file, err := os.Create(path)
	if err != nil {
		return Batch{}, errors.Wrapf(err, "failed to create archive file %s", path)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	rows := 0
	for _, sample := range samples {
		envelope, err := Envelope(sample, a.Config.Relay)
		if err != nil {
			log.Errorf("archive: failed to flatten sample: %v", err)
			continue
		}

		line, err := encoder.Encode(&envelope, encoder.SortMapKeys)
		if err != nil {
			log.Errorf("archive: encoding sample failed: %v", err)
			continue
		}
		w.Write(line)
		w.WriteByte('\n')
		rows++
	}

	if err := w.Flush(); err != nil {
		return Batch{}, errors.Wrapf(err, "failed to write archive file %s", path)
	}

	return Batch{DataFile: path, Timestamp: ts, Rows: rows}, nil
}
