// internal/messaging/paho.go
package messaging

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"vda5050-bridge/internal/utils"
)

// PahoTransport implements Transport with the Eclipse Paho client. Automatic
// reconnects are disabled; the ConnectionManager retries.
type PahoTransport struct {
	broker         string
	connectTimeout time.Duration

	mu               sync.Mutex
	client           mqtt.Client
	onMessage        func(topic string, payload []byte)
	onConnectionLost func(err error)
}

var _ Transport = (*PahoTransport)(nil)

// NewPahoTransport creates a transport for broker, e.g. tcp://localhost:1883.
func NewPahoTransport(broker string) *PahoTransport {
	return &PahoTransport{broker: broker, connectTimeout: 30 * time.Second}
}

func (p *PahoTransport) SetHandlers(onMessage func(topic string, payload []byte), onConnectionLost func(err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onMessage = onMessage
	p.onConnectionLost = onConnectionLost
}

// Connect builds a fresh client so the will from opts is applied.
func (p *PahoTransport) Connect(opts ConnectOptions, done func(err error)) {
	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(p.broker)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetUsername(opts.Username)
	clientOpts.SetPassword(opts.Password)
	if opts.KeepAlive > 0 {
		clientOpts.SetKeepAlive(opts.KeepAlive)
	}
	clientOpts.SetPingTimeout(10 * time.Second)
	clientOpts.SetConnectTimeout(p.connectTimeout)
	clientOpts.SetAutoReconnect(false)
	clientOpts.SetConnectRetry(false)
	clientOpts.SetCleanSession(true)
	clientOpts.SetOrderMatters(true)
	if opts.Will != nil {
		clientOpts.SetBinaryWill(opts.Will.Topic, opts.Will.Payload, opts.Will.QoS, opts.Will.Retained)
	}

	clientOpts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		utils.Logger.Debugf("MQTT RECEIVED Topic: %s", msg.Topic())
		p.mu.Lock()
		handler := p.onMessage
		p.mu.Unlock()
		if handler != nil {
			handler(msg.Topic(), msg.Payload())
		}
	})
	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		utils.Logger.Errorf("MQTT connection lost: %v", err)
		p.mu.Lock()
		handler := p.onConnectionLost
		p.mu.Unlock()
		if handler != nil {
			handler(err)
		}
	})

	client := mqtt.NewClient(clientOpts)
	p.mu.Lock()
	p.client = client
	p.mu.Unlock()

	complete(client.Connect(), done)
}

func (p *PahoTransport) Disconnect() {
	if client := p.current(); client != nil && client.IsConnected() {
		client.Disconnect(250)
		utils.Logger.Info("MQTT client disconnected")
	}
}

// Subscribe routes messages through the default publish handler.
func (p *PahoTransport) Subscribe(topic string, qos byte, done func(err error)) {
	client := p.current()
	if client == nil {
		done(ErrNotConnected)
		return
	}
	complete(client.Subscribe(topic, qos, nil), done)
}

func (p *PahoTransport) Unsubscribe(topic string, done func(err error)) {
	client := p.current()
	if client == nil {
		done(ErrNotConnected)
		return
	}
	complete(client.Unsubscribe(topic), done)
}

func (p *PahoTransport) Publish(topic string, qos byte, payload []byte, retained bool, done func(err error)) {
	client := p.current()
	if client == nil {
		done(ErrNotConnected)
		return
	}
	utils.Logger.Debugf("MQTT SENDING Topic: %s, QoS: %d, Retained: %v", topic, qos, retained)
	complete(client.Publish(topic, qos, retained, payload), done)
}

func (p *PahoTransport) current() mqtt.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client
}

// complete reports the token's outcome without blocking the caller.
func complete(token mqtt.Token, done func(err error)) {
	go func() {
		<-token.Done()
		if done != nil {
			done(token.Error())
		}
	}()
}
