package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/AsclepiaAI/asclepia-mvp/engine/domain"
	"github.com/nats-io/nats.go"
)

const (
	// IngestSubject carries asynchronous ingestion jobs.
	IngestSubject = "asclepia.ingest"
	// DLQSubject receives jobs that exhausted their retries.
	DLQSubject = "asclepia.ingest.dlq"
	// MaxRetries before a job goes to the DLQ.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// Job is one asynchronous ingestion request.
type Job struct {
	FileID    string           `json:"file_id"`
	Filename  string           `json:"filename"`
	MediaType domain.MediaType `json:"media_type"`
	Data      []byte           `json:"data"`
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Job     Job    `json:"job"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// StartConsumer subscribes to the ingest subject and runs each job
// through the pipeline. Failed jobs are re-published with an
// incremented retry count until MaxRetries, then sent to the DLQ.
// Partial ingestion counts as success; the skip list is logged.
func (s *Service) StartConsumer(nc *nats.Conn, logger *slog.Logger) (*nats.Subscription, error) {
	if logger == nil {
		logger = s.logger
	}

	return nc.Subscribe(IngestSubject, func(msg *nats.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			logger.Error("ingest consumer: unmarshal failed", "error", err)
			return
		}

		doc := domain.Document{
			FileID:   job.FileID,
			Filename: job.Filename,
			Media:    job.MediaType,
			ByteLen:  len(job.Data),
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get(retryHeader); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		res, err := s.Ingest(context.Background(), doc, job.Data)
		if err != nil && res != nil && res.Stored > 0 {
			// Partial result already landed; retrying would duplicate work.
			logger.Warn("ingest consumer: partial",
				"file_id", job.FileID, "stored", res.Stored, "skipped", len(res.Skipped))
			err = nil
		}

		if err != nil {
			retries++
			logger.Error("ingest consumer: job failed",
				"file_id", job.FileID, "error", err, "retry", retries)

			if retries >= MaxRetries {
				dlq := dlqMessage{Job: job, Error: err.Error(), Retries: retries}
				data, _ := json.Marshal(dlq)
				if pubErr := nc.Publish(DLQSubject, data); pubErr != nil {
					logger.Error("ingest consumer: DLQ publish failed", "error", pubErr)
				}
			} else {
				retry := nats.NewMsg(IngestSubject)
				retry.Data = msg.Data
				retry.Header = nats.Header{}
				retry.Header.Set(retryHeader, fmt.Sprintf("%d", retries))
				if pubErr := nc.PublishMsg(retry); pubErr != nil {
					logger.Error("ingest consumer: retry publish failed", "error", pubErr)
				}
			}
		} else if res != nil {
			logger.Info("ingest consumer: done",
				"file_id", job.FileID, "stored", res.Stored, "skipped", len(res.Skipped))
		}

		if msg.Reply != "" {
			_ = msg.Ack()
		}
	})
}
