package mqtt

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/PetoAdam/homenavi/weather-app/internal/models"
)

type Conn interface {
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
}

// Intents is the part of the forecast screen reachable over MQTT.
type Intents interface {
	SelectLocation(loc models.Location) error
	SelectHome() error
	Retry() error
	Refresh() error
}

// Bridge mirrors screen state to {prefix}/state and turns messages on
// {prefix}/cmd/{select,home,retry,refresh} into intents.
type Bridge struct {
	conn    Conn
	intents Intents
	prefix  string

	out  chan []byte
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewBridge starts the state publisher; Close stops it.
func NewBridge(conn Conn, intents Intents, prefix string) *Bridge {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "homenavi/weather"
	}
	b := &Bridge{
		conn:    conn,
		intents: intents,
		prefix:  prefix,
		out:     make(chan []byte, 16),
		done:    make(chan struct{}),
	}
	b.wg.Add(1)
	go b.publishLoop()
	return b
}

func (b *Bridge) StateTopic() string { return b.prefix + "/state" }

// PublishState is meant to be used as a state listener. It only queues the
// payload; when the queue is full the oldest state is dropped.
func (b *Bridge) PublishState(state any) {
	payload, err := json.Marshal(state)
	if err != nil {
		slog.Error("mqtt state encode failed", "error", err)
		return
	}
	for {
		select {
		case b.out <- payload:
			return
		default:
		}
		select {
		case <-b.out:
			slog.Debug("mqtt state queue full, dropping oldest")
		default:
		}
	}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case payload := <-b.out:
			if err := b.conn.Publish(b.StateTopic(), true, payload); err != nil {
				slog.Warn("mqtt state publish failed", "error", err)
			}
		}
	}
}

// Close stops the publisher. Queued states that were not sent are dropped.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
	b.wg.Wait()
}

func (b *Bridge) Start() error {
	topic := b.prefix + "/cmd/+"
	if err := b.conn.Subscribe(topic, b.handleCommand); err != nil {
		return err
	}
	slog.Info("mqtt command topic subscribed", "topic", topic)
	return nil
}

func (b *Bridge) handleCommand(topic string, payload []byte) {
	cmd := topic[strings.LastIndex(topic, "/")+1:]
	var err error
	switch cmd {
	case "select":
		var loc models.Location
		if jerr := json.Unmarshal(payload, &loc); jerr != nil {
			slog.Warn("mqtt select payload invalid", "error", jerr)
			return
		}
		err = b.intents.SelectLocation(loc)
	case "home":
		err = b.intents.SelectHome()
	case "retry":
		err = b.intents.Retry()
	case "refresh":
		err = b.intents.Refresh()
	default:
		slog.Debug("ignoring unknown mqtt command", "topic", topic)
		return
	}
	if err != nil {
		slog.Warn("mqtt command rejected", "command", cmd, "error", err)
	}
}
