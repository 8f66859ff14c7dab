package mqttserver

import (
	"errors"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey-austin/sonic_utopia/internal/adapters/mqtttls"
)

// Options configures the daemon's broker connection.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TLSCA     string
	TLSCert   string
	TLSKey    string
	Timeout   time.Duration
	Logger    *zap.Logger
	// Will is the presence topic cleared by the broker if the daemon drops
	// off without withdrawing.
	Will      string
}

// Conn is a network connection to an external broker. It satisfies
// Transport.
type Conn struct {
	client paho.Client
	log    *zap.Logger
}

// Dial connects to the broker.
func Dial(opts Options) (*Conn, error) {
	if strings.TrimSpace(opts.BrokerURL) == "" {
		return nil, errors.New("broker url required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ClientID == "" {
		opts.ClientID = "sonicd-" + uuid.NewString()
	}

	tlsConfig, err := mqtttls.ClientConfig(opts.TLSCA, opts.TLSCert, opts.TLSKey)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	clientOpts := paho.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetConnectTimeout(opts.Timeout).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("broker connection lost", zap.Error(err))
		}).
		SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
			log.Info("reconnecting to broker", zap.String("broker", opts.BrokerURL))
		})
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username).SetPassword(opts.Password)
	}
	if tlsConfig != nil {
		clientOpts.SetTLSConfig(tlsConfig)
	}
	if opts.Will != "" {
		clientOpts.SetBinaryWill(opts.Will, nil, 1, true)
	}

	client := paho.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &Conn{client: client, log: log}, nil
}

// Publish publishes payload on topic.
func (c *Conn) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return c.wait(c.client.Publish(topic, qos, retained, payload))
}

// Subscribe delivers messages on topic to handler.
func (c *Conn) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return c.wait(c.client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	}))
}

// Unsubscribe drops a subscription.
func (c *Conn) Unsubscribe(topic string) error {
	return c.wait(c.client.Unsubscribe(topic))
}

// Close disconnects, waiting briefly for in-flight work.
func (c *Conn) Close() {
	c.client.Disconnect(250)
}

func (c *Conn) wait(token paho.Token) error {
	token.Wait()
	return token.Error()
}
