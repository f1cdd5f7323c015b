// Package gateway connects the sequencer engine to its kafka input and
// output topics. It consumes requests from a single partition, feeds them to
// the engine one at a time, publishes the responses, and checkpoints the
// engine state at a fixed request interval so a restart replays only the
// tail of the stream.
package gateway

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"code.straitex.io/sequencer/core/journal"
	"code.straitex.io/sequencer/core/sequencer"
	"code.straitex.io/sequencer/core/types"
	"code.straitex.io/sequencer/logging"
	"code.straitex.io/sequencer/metrics"
)

type Gateway struct {
	log  *logging.Logger
	cfg  Config
	app  *sequencer.App
	jrnl *journal.Journal

	reader *kafka.Reader
	writer *kafka.Writer

	cycle           uint64
	sinceCheckpoint uint64
}

// New restores the engine from the last checkpoint in the journal and
// positions the consumer just past the input covered by it.
func New(log *logging.Logger, cfg Config, app *sequencer.App, jrnl *journal.Journal) (*Gateway, error) {
	log = log.Named("gateway")

	g := &Gateway{
		log:  log,
		cfg:  cfg,
		app:  app,
		jrnl: jrnl,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.ResponseTopic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
	}

	startOffset := kafka.FirstOffset
	cp, ok, err := jrnl.LastCheckpoint()
	if err != nil {
		return nil, errors.Wrap(err, "unable to load last checkpoint")
	}
	if ok {
		app.State().LoadCheckpoint(log, cp)
		g.cycle = cp.Cycle

		offset, err := jrnl.Offset()
		if err != nil {
			return nil, errors.Wrap(err, "unable to load checkpoint offset")
		}
		if offset >= 0 {
			startOffset = offset + 1
		}
		log.Info("state restored from checkpoint",
			zap.Uint64("cycle", cp.Cycle),
			zap.Int64("resumeOffset", startOffset))
	}

	g.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:   cfg.Brokers,
		Topic:     cfg.RequestTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	if err := g.reader.SetOffset(startOffset); err != nil {
		return nil, errors.Wrap(err, "unable to position request consumer")
	}
	return g, nil
}

// Run consumes requests until the context is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	for {
		msg, err := g.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return errors.Wrap(err, "unable to fetch request")
		}
		if err := g.handle(ctx, msg); err != nil {
			return err
		}
	}
}

func (g *Gateway) handle(ctx context.Context, msg kafka.Message) error {
	var req types.Request
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		g.log.Warn("unparseable request",
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		req = types.Request{Type: types.RequestUnparseable}
	}

	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(req.Type.String()))
	resp := g.app.ProcessRequest(req, uint64(msg.Offset))
	timer.ObserveDuration()
	metrics.RequestsProcessed.WithLabelValues(req.Type.String(), resp.Error.String()).Inc()
	metrics.TradesCreated.Add(float64(len(resp.TradesCreated)))

	data, err := json.Marshal(resp)
	if err != nil {
		return errors.Wrap(err, "unable to encode response")
	}
	if err := g.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(resp.Guid),
		Value: data,
	}); err != nil {
		return errors.Wrap(err, "unable to publish response")
	}

	g.sinceCheckpoint++
	if g.cfg.CheckpointInterval > 0 && g.sinceCheckpoint >= g.cfg.CheckpointInterval {
		if err := g.checkpoint(msg.Offset); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) checkpoint(offset int64) error {
	g.cycle++
	cp := g.app.State().ToCheckpoint(g.cycle)
	if err := g.jrnl.WriteCheckpoint(cp); err != nil {
		return errors.Wrap(err, "unable to write checkpoint")
	}
	if err := g.jrnl.SetOffset(offset); err != nil {
		return errors.Wrap(err, "unable to record checkpoint offset")
	}
	metrics.CheckpointsWritten.Inc()
	g.sinceCheckpoint = 0
	return nil
}

func (g *Gateway) Close() error {
	if err := g.reader.Close(); err != nil {
		g.log.Error("unable to close request consumer", zap.Error(err))
	}
	return g.writer.Close()
}
