package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/warehouse/core/events"
	"github.com/kilianp07/warehouse/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Enabled     bool            `json:"enabled"`
	Broker      string          `json:"broker"`
	ClientID    string          `json:"client_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	TopicPrefix string          `json:"topic_prefix"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	AuthMethod  string          `json:"auth_method"`
	QoS         map[string]byte `json:"qos"`
	LWTTopic    string          `json:"lwt_topic"`
	LWTPayload  string          `json:"lwt_payload"`
	LWTQoS      byte            `json:"lwt_qos"`
	LWTRetain   bool            `json:"lwt_retain"`
	MaxRetries  int             `json:"max_retries"`
	BackoffMS   int             `json:"backoff_ms"`
	TLSConfig   *tls.Config     `json:"-"`
	// Passive clients only publish: no status announcements, no subscriptions.
	Passive bool `json:"-"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "warehouse"
	}
	if c.ClientID == "" {
		c.ClientID = "warehouse-scheduler"
	}
	if c.LWTTopic == "" {
		c.LWTTopic = c.TopicPrefix + "/status"
		if c.LWTPayload == "" {
			c.LWTPayload = "offline"
		}
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS == 0 {
		c.BackoffMS = 100
	}
}

// Validate checks mandatory fields of an enabled client.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return fmt.Errorf("mqtt: broker is required")
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// ChargeRequest is an inbound request to queue an AGV for charging.
type ChargeRequest struct {
	AGVID   string `json:"agv_id"`
	Battery int    `json:"battery"`
	Urgent  bool   `json:"urgent"`
}

// PahoClient publishes warehouse state changes and receives charge requests.
type PahoClient struct {
	cli    pahoClient
	prefix string
	qos    map[string]byte

	mu         sync.Mutex
	onRequest  func(ChargeRequest)
	logger     logger.Logger
	lwtTopic   string
	maxRetries int
	backoff    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker, announces the service online
// and subscribes to the charge request topic.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	logger := logger.New("mqtt_client")
	lwt := cfg.LWTTopic
	if cfg.Passive {
		lwt = ""
	}
	pc := &PahoClient{
		prefix:     cfg.TopicPrefix,
		qos:        cfg.QoS,
		logger:     logger,
		lwtTopic:   lwt,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}

	opts.OnConnect = func(c paho.Client) {
		logger.Infof("MQTT connected")
		if cfg.Passive {
			return
		}
		if token := c.Subscribe(pc.RequestTopic(), pc.qosFor("request"), pc.onChargeRequest); token.Wait() && token.Error() != nil {
			logger.Errorf("subscribe error: %v", token.Error())
		}
		if pc.lwtTopic != "" {
			c.Publish(pc.lwtTopic, cfg.LWTQoS, true, "online")
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		logger.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" && !cfg.Passive {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

// RequestTopic is the topic charge requests are read from.
func (p *PahoClient) RequestTopic() string { return p.prefix + "/charging/request" }

// OnChargeRequest installs the handler for inbound charge requests.
func (p *PahoClient) OnChargeRequest(h func(ChargeRequest)) {
	p.mu.Lock()
	p.onRequest = h
	p.mu.Unlock()
}

func (p *PahoClient) onChargeRequest(_ paho.Client, msg paho.Message) {
	var req ChargeRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		p.logger.Errorf("failed to decode charge request: %v", err)
		return
	}
	p.mu.Lock()
	h := p.onRequest
	p.mu.Unlock()
	if h == nil {
		p.logger.Warnf("charge request for %s ignored: no handler", req.AGVID)
		return
	}
	p.logger.Infof("received charge request for %s", req.AGVID)
	h(req)
}

// RequestCharge publishes req on the charge request topic.
func (p *PahoClient) RequestCharge(req ChargeRequest) error {
	return p.publish(p.RequestTopic(), "request", false, req)
}

type chargingStatus struct {
	AGVID     string `json:"agv_id"`
	State     string `json:"state"`
	StationID string `json:"station_id,omitempty"`
	Battery   int    `json:"battery"`
	Failure   string `json:"failure,omitempty"`
	WaitMS    int64  `json:"wait_ms"`
	Timestamp int64  `json:"timestamp"`
}

// PublishCharging publishes the latest charging state of an AGV, retained.
func (p *PahoClient) PublishCharging(ev events.ChargingEvent) error {
	return p.publish(fmt.Sprintf("%s/charging/%s", p.prefix, ev.AGVID), "charging", true, chargingStatus{
		AGVID:     ev.AGVID,
		State:     string(ev.Kind),
		StationID: ev.StationID,
		Battery:   ev.Battery,
		Failure:   ev.Failure,
		WaitMS:    ev.Wait.Milliseconds(),
		Timestamp: stamp(ev.Time),
	})
}

type stockStatus struct {
	LocationID string `json:"location_id"`
	Op         string `json:"op"`
	Amount     int    `json:"amount"`
	Load       int    `json:"load"`
	Capacity   int    `json:"capacity"`
	Error      string `json:"error,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// PublishStock publishes a location's load after a stock operation, retained.
func (p *PahoClient) PublishStock(ev events.StockEvent) error {
	st := stockStatus{
		LocationID: ev.LocationID,
		Op:         string(ev.Op),
		Amount:     ev.Amount,
		Load:       ev.Load,
		Capacity:   ev.Capacity,
		Timestamp:  stamp(ev.Time),
	}
	if ev.Err != nil {
		st.Error = ev.Err.Error()
	}
	return p.publish(fmt.Sprintf("%s/stock/%s", p.prefix, ev.LocationID), "stock", true, st)
}

// PublishOrder publishes an order transition.
func (p *PahoClient) PublishOrder(ev events.OrderEvent) error {
	payload := map[string]any{
		"order_id":    ev.OrderID,
		"medicine":    ev.Medicine,
		"quantity":    ev.Quantity,
		"location_id": ev.LocationID,
		"status":      ev.Status,
		"timestamp":   stamp(ev.Time),
	}
	if ev.Err != nil {
		payload["error"] = ev.Err.Error()
	}
	return p.publish(fmt.Sprintf("%s/orders/%s", p.prefix, ev.OrderID), "order", false, payload)
}

// PublishTask publishes a task transition.
func (p *PahoClient) PublishTask(ev events.TaskEvent) error {
	payload := map[string]any{
		"task_id":     ev.TaskID,
		"type":        ev.Type,
		"source":      ev.Source,
		"destination": ev.Destination,
		"status":      ev.Status,
		"timestamp":   stamp(ev.Time),
	}
	if ev.Err != nil {
		payload["error"] = ev.Err.Error()
	}
	return p.publish(fmt.Sprintf("%s/tasks/%s", p.prefix, ev.TaskID), "task", false, payload)
}

func (p *PahoClient) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

func (p *PahoClient) publish(topic, kind string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	retries := p.maxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := p.backoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	qos := p.qosFor(kind)
	var publishErr error
	for attempt := 0; attempt <= retries; attempt++ {
		token := p.cli.Publish(topic, qos, retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("published %s", topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < retries {
			time.Sleep(backoff * time.Duration(1<<attempt))
		}
	}
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// Disconnect announces the service offline and closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		if p.lwtTopic != "" {
			p.cli.Publish(p.lwtTopic, 0, true, "offline").Wait()
		}
		p.cli.Disconnect(250)
	}
}

func stamp(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMilli()
}
