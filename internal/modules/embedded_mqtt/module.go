package embeddedmqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"go.uber.org/zap"

	"github.com/mikey-austin/sonic_utopia/internal/adapters/mqtttls"
)

// DefaultListen is the broker address used when none is configured.
const DefaultListen = "127.0.0.1:1883"

// Config configures the embedded MQTT broker that player nodes and the sonic
// CLI meet on.
type Config struct {
	Listen         string
	AllowAnonymous bool
	Username       string
	Password       string
	TLSCA          string
	TLSCert        string
	TLSKey         string
}

// Module runs an embedded MQTT broker.
type Module struct {
	log    *zap.Logger
	server *mqtt.Server
	config Config
}

// NewModule creates a new embedded broker module.
func NewModule(log *zap.Logger, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = DefaultListen
	}

	server, err := newServer(log, cfg)
	if err != nil {
		return nil, err
	}
	return &Module{log: log, server: server, config: cfg}, nil
}

// BrokerURL returns the URL clients use to reach this broker.
func (m *Module) BrokerURL() string {
	return BrokerURL(m.config.Listen, m.config.TLSCert != "")
}

// Inline returns a client that publishes and subscribes in-process, without
// a network connection to the broker.
func (m *Module) Inline() *InlineClient {
	return &InlineClient{server: m.server, ids: map[string]int{}}
}

// InlineClient publishes and subscribes through the broker's inline client.
type InlineClient struct {
	server *mqtt.Server

	mu     sync.Mutex
	nextID int
	ids    map[string]int
}

// Publish publishes a message.
func (c *InlineClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return c.server.Publish(topic, payload, retained, qos)
}

// Subscribe delivers messages on filter to handler. Inline subscriptions
// ignore qos.
func (c *InlineClient) Subscribe(filter string, _ byte, handler func(topic string, payload []byte)) error {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.ids[filter] = id
	c.mu.Unlock()

	return c.server.Subscribe(filter, id, func(_ *mqtt.Client, _ packets.Subscription, pk packets.Packet) {
		handler(pk.TopicName, pk.Payload)
	})
}

// Unsubscribe removes the inline subscription on filter.
func (c *InlineClient) Unsubscribe(filter string) error {
	c.mu.Lock()
	id, ok := c.ids[filter]
	delete(c.ids, filter)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.server.Unsubscribe(filter, id)
}

// Run starts the embedded broker and blocks until ctx is done.
func (m *Module) Run(ctx context.Context) error {
	listenerConfig := listeners.Config{ID: "tcp-embedded", Address: m.config.Listen}
	if m.config.TLSCert != "" || m.config.TLSKey != "" || m.config.TLSCA != "" {
		tlsConfig, err := mqtttls.ServerConfig(m.config.TLSCA, m.config.TLSCert, m.config.TLSKey)
		if err != nil {
			return err
		}
		listenerConfig.TLSConfig = tlsConfig
	}

	listener := listeners.NewTCP(listenerConfig)
	if err := m.server.AddListener(listener); err != nil {
		return err
	}

	go func() {
		if err := m.server.Serve(); err != nil {
			m.log.Error("embedded mqtt serve failed", zap.Error(err))
		}
	}()
	m.log.Info("embedded mqtt listening", zap.String("listen", m.config.Listen))

	<-ctx.Done()
	return m.server.Close()
}

func newServer(log *zap.Logger, cfg Config) (*mqtt.Server, error) {
	options := &mqtt.Options{InlineClient: true, Logger: newSlogLogger(log)}
	server := mqtt.New(options)

	if cfg.AllowAnonymous {
		if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
			return nil, err
		}
	} else if cfg.Username != "" {
		ledger := &auth.Ledger{
			Auth: auth.AuthRules{{Username: auth.RString(cfg.Username), Password: auth.RString(cfg.Password), Allow: true}},
			ACL:  auth.ACLRules{{Username: auth.RString(cfg.Username), Filters: auth.Filters{auth.RString("#"): auth.ReadWrite}}},
		}
		if err := server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger}); err != nil {
			return nil, err
		}
	} else {
		return nil, errors.New("embedded mqtt requires allow_anonymous or username")
	}

	return server, nil
}

func newSlogLogger(logger *zap.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return slog.New(&zapSlogHandler{logger: logger})
}

type zapSlogHandler struct {
	logger *zap.Logger
	attrs  []slog.Attr
}

func (h *zapSlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return true
}

func (h *zapSlogHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]zap.Field, 0, len(h.attrs)+record.NumAttrs())
	var errMsg string
	for _, attr := range h.attrs {
		fields = append(fields, slogAttrToField(attr))
	}
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == "error" {
			switch attr.Value.Kind() {
			case slog.KindString:
				errMsg = attr.Value.String()
			case slog.KindAny:
				if v, ok := attr.Value.Any().(error); ok {
					errMsg = v.Error()
				}
			}
		}
		fields = append(fields, slogAttrToField(attr))
		return true
	})
	if errMsg != "" && (strings.Contains(errMsg, "read connection: EOF") || errMsg == "EOF") {
		fields = append(fields, zap.String("note", "harmless connection close"))
		h.logger.Debug("embedded mqtt connection closed", fields...)
		return nil
	}
	switch {
	case record.Level >= slog.LevelError:
		h.logger.Error(record.Message, fields...)
	case record.Level >= slog.LevelWarn:
		h.logger.Warn(record.Message, fields...)
	case record.Level >= slog.LevelInfo:
		h.logger.Info(record.Message, fields...)
	default:
		h.logger.Debug(record.Message, fields...)
	}
	return nil
}

func (h *zapSlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next = append(next, h.attrs...)
	next = append(next, attrs...)
	return &zapSlogHandler{logger: h.logger, attrs: next}
}

func (h *zapSlogHandler) WithGroup(_ string) slog.Handler {
	return h
}

func slogAttrToField(attr slog.Attr) zap.Field {
	switch attr.Value.Kind() {
	case slog.KindString:
		return zap.String(attr.Key, attr.Value.String())
	case slog.KindInt64:
		return zap.Int64(attr.Key, attr.Value.Int64())
	case slog.KindUint64:
		return zap.Uint64(attr.Key, attr.Value.Uint64())
	case slog.KindFloat64:
		return zap.Float64(attr.Key, attr.Value.Float64())
	case slog.KindBool:
		return zap.Bool(attr.Key, attr.Value.Bool())
	default:
		return zap.Any(attr.Key, attr.Value.Any())
	}
}


// BrokerURL returns the broker URL for a listen address.
func BrokerURL(listen string, tlsEnabled bool) string {
	scheme := "mqtt"
	if tlsEnabled {
		scheme = "mqtts"
	}
	return fmt.Sprintf("%s://%s", scheme, listen)
}
