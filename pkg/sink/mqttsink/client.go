package mqttsink

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

const (
	qos        = byte(1)
	pubTimeout = 5 * time.Second
)

// Client wraps a paho client connected to one broker.
type Client struct {
	client mqtt.Client
}

// NewClient connects to mqttURL. Supported schemes are mqtt, mqtts, tcp,
// ssl, ws and wss. The broker marks <topic>/availability offline when the
// connection is lost.
func NewClient(mqttURL, clientID, topic string) (*Client, error) {
	parsedURL, err := url.Parse(mqttURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT URL: %w", err)
	}

	opts := mqtt.NewClientOptions()

	var brokerURL string
	switch parsedURL.Scheme {
	case "tcp", "ws":
		brokerURL = mqttURL
	case "ssl", "wss":
		brokerURL = mqttURL
		opts.SetTLSConfig(&tls.Config{})
	case "mqtt":
		brokerURL = strings.Replace(mqttURL, "mqtt://", "tcp://", 1)
	case "mqtts":
		brokerURL = strings.Replace(mqttURL, "mqtts://", "ssl://", 1)
		opts.SetTLSConfig(&tls.Config{})
	default:
		return nil, fmt.Errorf("unsupported protocol scheme: %s (supported: mqtt, mqtts, tcp, ssl, ws, wss)", parsedURL.Scheme)
	}

	availability := AvailabilityTopic(topic)

	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetWill(availability, "offline", qos, true)

	if parsedURL.User != nil {
		password, _ := parsedURL.User.Password()
		opts.SetUsername(parsedURL.User.Username())
		opts.SetPassword(password)
	}

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logrus.WithError(err).Warn("MQTT connection lost")
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		logrus.Debug("MQTT reconnecting")
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		// Runs on every (re)connect, so the will is overwritten again.
		client.Publish(availability, qos, true, "online")
		logrus.Debug("MQTT connected")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	logrus.WithFields(logrus.Fields{
		"broker":   cleanURL(mqttURL),
		"clientID": clientID,
	}).Info("MQTT client connected")

	return &Client{client: client}, nil
}

// Publish publishes payload to topic and waits for the broker to accept it.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(pubTimeout) {
		return fmt.Errorf("publish to topic %s timed out after %s", topic, pubTimeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	logrus.WithFields(logrus.Fields{
		"topic":    topic,
		"size":     len(payload),
		"retained": retained,
	}).Trace("published MQTT message")

	return nil
}

// Disconnect waits up to quiesce milliseconds for pending work.
func (c *Client) Disconnect(quiesce uint) {
	c.client.Disconnect(quiesce)
	logrus.Debug("MQTT client disconnected")
}

// cleanURL removes credentials from URL for logging
func cleanURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if parsed.User != nil {
		parsed.User = url.UserPassword("***", "***")
	}

	return parsed.String()
}
