package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/building-dims/internal/core/config"
	"github.com/mohammed-shakir/building-dims/internal/invalidation"
	"github.com/mohammed-shakir/building-dims/internal/logger"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr, newProducer))
}

type producerFactory func(brokers []string) (sarama.SyncProducer, error)

func newProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Version = sarama.V2_1_0_0
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("producer create: %w", err)
	}
	return prod, nil
}

// message builds the event for one raster, keyed by raster id so events
// for the same raster stay on one partition.
func message(topic string, ev invalidation.Event) (*sarama.ProducerMessage, error) {
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(ev.Raster),
		Value: sarama.ByteEncoder(b),
	}, nil
}

func run(args []string, stderr io.Writer, factory producerFactory) int {
	cfg := config.FromEnv()

	fs := flag.NewFlagSet("raster-notify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	brokers := fs.String("brokers", cfg.Invalidation.Brokers, "comma separated kafka brokers")
	topic := fs.String("topic", cfg.Invalidation.Topic, "invalidation topic")
	op := fs.String("op", invalidation.OpUpdate, "update or delete")
	src := fs.String("source", "raster-notify", "event source label")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		_, _ = fmt.Fprintln(stderr, "usage: raster-notify [flags] raster...")
		return 2
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "raster-notify",
	}, stderr)
	log := logger.NewSlog(&zl)

	prod, err := factory(strings.Split(*brokers, ","))
	if err != nil {
		log.Error("kafka unavailable", "err", err)
		return 1
	}
	defer func() { _ = prod.Close() }()

	now := time.Now().UTC()
	for _, raster := range fs.Args() {
		msg, err := message(*topic, invalidation.Event{Version: 1, Op: *op, Raster: raster, TS: now, Source: *src})
		if err != nil {
			log.Error("event rejected", "raster", raster, "err", err)
			return 1
		}
		partition, offset, err := prod.SendMessage(msg)
		if err != nil {
			log.Error("send failed", "raster", raster, "err", err)
			return 1
		}
		log.Info("event published", "raster", raster, "op", *op, "partition", partition, "offset", offset)
	}
	return 0
}
