// Package publish forwards gesture events to an MQTT broker so other
// processes (a game, a logger, a second screen) can consume them.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/ayusman/headrun/internal/calibration"
	"github.com/ayusman/headrun/internal/log"
	"github.com/ayusman/headrun/internal/pipeline"
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt client not connected")

// Config holds the broker settings.
type Config struct {
	Broker   string
	ClientID string
	// Topic is the prefix; messages go to Topic+"/gesture" and Topic+"/status".
	Topic   string
	QoS     byte
	Timeout time.Duration
}

// DefaultConfig returns a local broker configuration.
func DefaultConfig() Config {
	return Config{
		Broker:   "tcp://localhost:1883",
		ClientID: "headrun",
		Topic:    "headrun",
		QoS:      0,
		Timeout:  2 * time.Second,
	}
}

// GestureMessage is the payload published for each accepted gesture.
type GestureMessage struct {
	Gesture    string    `json:"gesture"`
	Previous   string    `json:"previous"`
	At         time.Time `json:"at"`
	Session    string    `json:"session"`
	Yaw        float64   `json:"yaw"`
	Pitch      float64   `json:"pitch"`
	Confidence float64   `json:"confidence"`
}

// StatusMessage is the retained session status payload.
type StatusMessage struct {
	Status  string    `json:"status"`
	At      time.Time `json:"at"`
	Session string    `json:"session"`
	Detail  string    `json:"detail,omitempty"`
}

// Session status values.
const (
	StatusCalibrated        = "calibrated"
	StatusCalibrationFailed = "calibration_failed"
	StatusDegraded          = "degraded"
)

// client is the subset of mqtt.Client the publisher uses.
type client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher publishes pipeline events for one session.
type Publisher struct {
	config  Config
	client  client
	session string
}

// Connect dials the broker and returns a Publisher with a fresh session ID.
func Connect(config Config) (*Publisher, error) {
	if config.ClientID == "" {
		config.ClientID = "headrun-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions().
		AddBroker(config.Broker).
		SetClientID(config.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(config.Timeout)

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to %s: %w", config.Broker, token.Error())
	}
	log.Info("connected to mqtt broker", "broker", config.Broker, "topic", config.Topic)

	return newPublisher(config, c), nil
}

func newPublisher(config Config, c client) *Publisher {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Publisher{
		config:  config,
		client:  c,
		session: uuid.NewString(),
	}
}

// Session returns the session ID stamped on every message.
func (p *Publisher) Session() string {
	return p.session
}

// Gesture publishes an accepted gesture change.
func (p *Publisher) Gesture(e pipeline.Event) error {
	return p.publish(p.config.Topic+"/gesture", false, EncodeGesture(e, p.session))
}

// Calibrated publishes a retained calibrated status.
func (p *Publisher) Calibrated(profile calibration.Profile) error {
	detail := fmt.Sprintf("yaw=%.3f pitch=%.3f samples=%d", profile.NeutralYaw, profile.NeutralPitch, profile.Samples)
	return p.status(StatusCalibrated, profile.CalibratedAt, detail)
}

// CalibrationFailed publishes a retained calibration failure status.
func (p *Publisher) CalibrationFailed(err error, at time.Time) error {
	return p.status(StatusCalibrationFailed, at, err.Error())
}

// Degraded publishes a retained degraded status.
func (p *Publisher) Degraded(e pipeline.DegradedEvent) error {
	return p.status(StatusDegraded, e.At, fmt.Sprintf("failed_frames=%d", e.FailedFrames))
}

func (p *Publisher) status(status string, at time.Time, detail string) error {
	msg := StatusMessage{Status: status, At: at, Session: p.session, Detail: detail}
	return p.publish(p.config.Topic+"/status", true, msg)
}

func (p *Publisher) publish(topic string, retained bool, msg any) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.config.QoS, retained, payload)
	if !token.WaitTimeout(p.config.Timeout) {
		return fmt.Errorf("publish %s: timed out after %s", topic, p.config.Timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

// EncodeGesture builds the message for an event.
func EncodeGesture(e pipeline.Event, session string) GestureMessage {
	return GestureMessage{
		Gesture:    e.Gesture.String(),
		Previous:   e.Previous.String(),
		At:         e.At,
		Session:    session,
		Yaw:        e.Yaw,
		Pitch:      e.Pitch,
		Confidence: e.Confidence,
	}
}
