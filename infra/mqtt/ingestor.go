// Package mqtt ingests beliefs published by external forecasters and
// metering systems. The core never originates observation beliefs itself;
// this adapter is the intake boundary.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/gridflex/flexcore/core/belief"
	"github.com/gridflex/flexcore/core/logger"
	"github.com/gridflex/flexcore/core/metrics"
	"github.com/gridflex/flexcore/core/unit"
)

// Config defines the connection parameters for the belief ingestor.
type Config struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	// Topic is the subscription filter carrying belief messages, by default
	// "flex/beliefs/#".
	Topic string `json:"topic"`
	QoS   byte   `json:"qos"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Topic == "" {
		c.Topic = "flex/beliefs/#"
	}
	if c.ClientID == "" {
		c.ClientID = "flexcore-" + uuid.NewString()[:8]
	}
}

// Validate checks required fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return errors.New("mqtt: broker required")
	}
	return nil
}

// BeliefMessage is the wire format forecasters publish.
type BeliefMessage struct {
	SensorID              string    `json:"sensor_id"`
	EventStart            time.Time `json:"event_start"`
	ResolutionSeconds     int       `json:"resolution_s"`
	BeliefTime            time.Time `json:"belief_time"`
	Source                string    `json:"source"`
	Value                 float64   `json:"value"`
	Unit                  string    `json:"unit"`
	// A pointer so an omitted field (unset, defaults to the median) stays
	// distinct from an explicit 0th percentile.
	CumulativeProbability *float64 `json:"cumulative_probability"`
}

// Ingestor subscribes to belief topics and records incoming beliefs.
// Duplicate beliefs are treated as success: forecasters may redeliver.
type Ingestor struct {
	cli   paho.Client
	cfg   Config
	store belief.Store
	sink  metrics.Sink
	log   logger.Logger
	now   func() time.Time
}

// pahoConnect allows tests to substitute the network client.
var pahoConnect = func(opts *paho.ClientOptions) (paho.Client, error) {
	c := paho.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return c, nil
}

// NewIngestor connects to the broker and subscribes to the belief topic.
func NewIngestor(cfg Config, store belief.Store, sink metrics.Sink, log logger.Logger) (*Ingestor, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	ing := &Ingestor{cfg: cfg, store: store, sink: sink, log: log, now: time.Now}

	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected, subscribing to %s", cfg.Topic)
		if token := c.Subscribe(cfg.Topic, cfg.QoS, ing.onMessage); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}

	cli, err := pahoConnect(opts)
	if err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	ing.cli = cli
	return ing, nil
}

func (i *Ingestor) onMessage(_ paho.Client, msg paho.Message) {
	var m BeliefMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		i.log.Warnf("invalid belief message on %s: %v", msg.Topic(), err)
		return
	}
	b, err := i.toBelief(m)
	if err != nil {
		i.log.Warnf("rejected belief on %s: %v", msg.Topic(), err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := i.store.Record(ctx, b); err != nil {
		if errors.Is(err, belief.ErrDuplicateBelief) {
			i.log.Debugf("duplicate belief for %s ignored", b.SensorID)
			return
		}
		i.log.Errorf("record belief for %s: %v", b.SensorID, err)
		return
	}
	if err := i.sink.RecordIngest(metrics.IngestEvent{
		SensorID: b.SensorID,
		Source:   b.Source,
		Count:    1,
		Time:     b.BeliefTime,
	}); err != nil {
		i.log.Warnf("record ingest metrics: %v", err)
	}
}

func (i *Ingestor) toBelief(m BeliefMessage) (belief.Belief, error) {
	u, err := unit.Parse(m.Unit)
	if err != nil {
		return belief.Belief{}, err
	}
	bt := m.BeliefTime
	if bt.IsZero() {
		bt = i.now()
	}
	b := belief.Belief{
		SensorID:              m.SensorID,
		EventStart:            m.EventStart,
		Resolution:            time.Duration(m.ResolutionSeconds) * time.Second,
		BeliefTime:            bt,
		Source:                m.Source,
		Value:                 unit.Q(m.Value, u),
		CumulativeProbability: m.CumulativeProbability,
	}
	return b, b.Validate()
}

// Close disconnects from the broker.
func (i *Ingestor) Close() {
	if i.cli != nil && i.cli.IsConnected() {
		i.cli.Disconnect(250)
	}
}
