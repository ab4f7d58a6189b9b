// Package ingest subscribes to the device telemetry topic and feeds each
// payload through the telemetry analysis path.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/gridassist/server/internal/support/graph"
	"github.com/gridassist/server/internal/support/model"
	logx "github.com/gridassist/server/pkg/logger"
)

const (
	connectTimeout = 10 * time.Second
	handlerTimeout = 2 * time.Minute
)

// Bridge connects an MQTT broker to the support engine. Each message on the
// topic becomes one telemetry turn in its own synthetic conversation.
type Bridge struct {
	engine *graph.Engine
	cfg    model.MQTTConfig
	client mqtt.Client
}

func NewBridge(engine *graph.Engine, cfg model.MQTTConfig) (*Bridge, error) {
	if engine == nil {
		return nil, errors.New("engine is nil")
	}
	return &Bridge{engine: engine, cfg: cfg}, nil
}

// Start connects and subscribes. Message handling runs on the paho client's
// router goroutines; Stop disconnects cleanly.
func (b *Bridge) Start() error {
	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID(b.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(func(c mqtt.Client) {
			token := c.Subscribe(b.cfg.Topic, 1, b.handleMessage)
			token.Wait()
			if err := token.Error(); err != nil {
				logx.Error().Err(err).Str("topic", b.cfg.Topic).Msg("mqtt subscribe failed")
				return
			}
			logx.Info().Str("topic", b.cfg.Topic).Msg("subscribed to telemetry topic")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logx.Warn().Err(err).Msg("mqtt connection lost, will reconnect")
		})

	b.client = mqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect to %s timed out", b.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (b *Bridge) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := string(msg.Payload())
	logx.Info().
		Str("topic", msg.Topic()).
		Int("bytes", len(payload)).
		Msg("telemetry payload received")

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	res, err := b.engine.RunTelemetry(ctx, model.TurnInput{Message: payload})
	if err != nil {
		logx.Error().Err(err).Str("topic", msg.Topic()).Msg("telemetry analysis failed")
		return
	}
	logx.Info().
		Str("conversation_id", res.State.ConversationID).
		Str("ticket_id", res.State.RecentTicketID).
		Msg("telemetry payload processed")
}

// Stop disconnects from the broker, letting in-flight handlers finish.
func (b *Bridge) Stop() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(500)
	}
}
