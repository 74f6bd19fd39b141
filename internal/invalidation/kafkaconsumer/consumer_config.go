package kafkaconsumer

import (
	"strings"
	"time"

	"github.com/mohammed-shakir/building-dims/internal/core/config"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
}

func FromConfig(c config.InvalidationCfg) Config {
	topic := c.Topic
	if topic == "" {
		topic = "raster-updates"
	}
	group := c.GroupID
	if group == "" {
		group = "raster-invalidator"
	}
	return Config{
		Brokers:             splitCSV(c.Brokers),
		Topic:               topic,
		GroupID:             group,
		SessionTimeout:      30 * time.Second,
		Heartbeat:           3 * time.Second,
		RebalanceTimeout:    30 * time.Second,
		InitialOffsetOldest: true,
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
