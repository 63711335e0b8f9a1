package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const mqttQoS byte = 1

var errMQTTTimeout = errors.New("kv: mqtt operation timed out")

// MQTT publishes keys as retained messages on topics named after the key.
// Retained messages never expire, so ttl is ignored.
type MQTT struct {
	client  mqtt.Client
	timeout time.Duration
}

func DialMQTT(ctx context.Context, broker, clientID string, timeout time.Duration) (*MQTT, error) {
	if clientID == "" {
		clientID = "etcdstat-" + uuid.NewString()
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout)

	client := mqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect(), timeout); err != nil {
		return nil, fmt.Errorf("kv: connect to %s: %w", broker, err)
	}

	return &MQTT{client: client, timeout: timeout}, nil
}

func waitToken(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errMQTTTimeout
	}
}

func topic(key string) string {
	return strings.Trim(key, "/")
}

func (m *MQTT) Put(ctx context.Context, key, value string, _ time.Duration) error {
	if err := waitToken(ctx, m.client.Publish(topic(key), mqttQoS, true, value), m.timeout); err != nil {
		return fmt.Errorf("kv: publish %s: %w", key, err)
	}
	return nil
}

func (m *MQTT) Append(ctx context.Context, dir, value string, ttl time.Duration) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("kv: generate append key: %w", err)
	}
	key := JoinKey(dir, id.String())
	return key, m.Put(ctx, key, value, ttl)
}

func (m *MQTT) Snapshot(context.Context, string) ([]Entry, error) {
	return nil, fmt.Errorf("%w: mqtt snapshot", ErrNotSupported)
}

// Watch subscribes to prefix/#. An empty retained payload is reported as a delete.
func (m *MQTT) Watch(ctx context.Context, prefix string) (<-chan Event, error) {
	filter := "#"
	if t := topic(prefix); t != "" {
		filter = t + "/#"
	}

	out := make(chan Event, watchBuffer)
	var (
		mu     sync.Mutex
		closed bool
	)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		ev := Event{Type: EventPut, Key: "/" + msg.Topic(), Value: string(msg.Payload())}
		if len(msg.Payload()) == 0 {
			ev = Event{Type: EventDelete, Key: "/" + msg.Topic()}
		}

		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}

	if err := waitToken(ctx, m.client.Subscribe(filter, mqttQoS, handler), m.timeout); err != nil {
		return nil, fmt.Errorf("kv: subscribe %s: %w", filter, err)
	}

	go func() {
		<-ctx.Done()
		m.client.Unsubscribe(filter)
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()

	return out, nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
