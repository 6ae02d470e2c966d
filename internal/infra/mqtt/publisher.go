package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dchest/uniuri"
	pm "github.com/eclipse/paho.mqtt.golang"

	"lightctl/internal/domain"
)

const publishTimeout = 5 * time.Second

// Client is the part of the paho client the publisher needs.
type Client interface {
	Connect() pm.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) pm.Token
	Disconnect(quiesce uint)
}

// Publisher sends control events to <topic>/events and each device result
// to <topic>/lights/<device_id>.
type Publisher struct {
	client Client
	topic  string
	logger *slog.Logger
}

func NewPublisher(uri, topic string, logger *slog.Logger) *Publisher {
	opts := pm.NewClientOptions().
		AddBroker(uri).
		SetClientID("lightctl_" + uniuri.New()).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(pm.Client) {
			logger.Info("connected to mqtt broker", "uri", uri)
		}).
		SetConnectionLostHandler(func(_ pm.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		})

	return NewPublisherWithClient(pm.NewClient(opts), topic, logger)
}

func NewPublisherWithClient(client Client, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{
		client: client,
		topic:  strings.TrimSuffix(topic, "/"),
		logger: logger,
	}
}

func (p *Publisher) Connect(ctx context.Context) error {
	if err := wait(ctx, p.client.Connect()); err != nil {
		return fmt.Errorf("connecting to mqtt: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.logger.Info("disconnecting from mqtt")
	p.client.Disconnect(250)
}

func (p *Publisher) Notify(ctx context.Context, event domain.ControlEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := wait(ctx, p.client.Publish(p.topic+"/events", 1, false, payload)); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}

	for _, r := range event.Response.Results {
		if !r.Success {
			continue
		}
		state, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encoding device state: %w", err)
		}
		// Retained so subscribers see the last known state on connect.
		if err := wait(ctx, p.client.Publish(p.topic+"/lights/"+r.DeviceID, 1, true, state)); err != nil {
			return fmt.Errorf("publishing state of %s: %w", r.Name, err)
		}
	}

	p.logger.Debug("published control event", "event_id", event.ID, "topic", p.topic)
	return nil
}

func wait(ctx context.Context, token pm.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("timed out after %s", publishTimeout)
	}
}
