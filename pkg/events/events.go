package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cuemby/hamster/pkg/metrics"
	"github.com/google/uuid"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// EventType represents the type of event
type EventType string

const (
	EventResourceRegistered   EventType = "resource.registered"
	EventResourceHeartbeat    EventType = "resource.heartbeat"
	EventResourceOffline      EventType = "resource.offline"
	EventResourceDown         EventType = "resource.down"
	EventDeploymentPlaced     EventType = "deployment.placed"
	EventDeploymentEnded      EventType = "deployment.ended"
	EventDAppHeartbeat        EventType = "dapp.heartbeat"
	EventDAppStopped          EventType = "dapp.stopped"
	EventDAppTimeout          EventType = "dapp.timeout"
	EventRedistributionFailed EventType = "redistribution.failed"
)

// Event represents a provider notification
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Epoch     uint64            `json:"epoch"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Data      interface{}       `json:"data,omitempty"`
}

// New creates an event with a fresh id
func New(eventType EventType, epoch uint64, message string, data interface{}) *Event {
	return &Event{
		ID:      uuid.New().String(),
		Type:    eventType,
		Epoch:   epoch,
		Message: message,
		Data:    data,
	}
}

// Decode copies the payload into v. Events received over the wire carry
// their payload as generic JSON, so v is usually one of the payload types
// below.
func (e *Event) Decode(v interface{}) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// ResourceRegistered is the payload of resource.registered
type ResourceRegistered struct {
	ResourceID uint64 `json:"resource_id"`
	Owner      string `json:"owner"`
	PeerID     string `json:"peer_id"`
	CPU        uint32 `json:"cpu"`
	Memory     uint32 `json:"memory"`
}

// ResourceHeartbeat is the payload of resource.heartbeat: the provider's
// acknowledgement routed back to the node
type ResourceHeartbeat struct {
	ResourceID uint64   `json:"resource_id"`
	PeerID     string   `json:"peer_id"`
	DApps      []uint64 `json:"dapps"`
	Revived    bool     `json:"revived,omitempty"`
}

// ResourceLost is the payload of resource.offline and resource.down
type ResourceLost struct {
	ResourceID uint64   `json:"resource_id"`
	Owner      string   `json:"owner"`
	PeerID     string   `json:"peer_id"`
	DApps      []uint64 `json:"dapps"`
	Failed     []string `json:"failed,omitempty"`
}

// DeploymentPlaced is the payload of deployment.placed: everything the chosen
// node needs to launch the workload
type DeploymentPlaced struct {
	DAppID     uint64      `json:"dapp_id"`
	Owner      string      `json:"owner"`
	Name       string      `json:"name"`
	ResourceID uint64      `json:"resource_id"`
	PeerID     string      `json:"peer_id"`
	PublicIP   string      `json:"public_ip"`
	CPU        uint32      `json:"cpu"`
	Memory     uint32      `json:"memory"`
	MethodKind uint8       `json:"method_kind"`
	Command    string      `json:"command"`
	Launch     *specs.Spec `json:"launch,omitempty"`
}

// DAppRef identifies a workload in stop and failure notifications
type DAppRef struct {
	DAppID     uint64 `json:"dapp_id"`
	Owner      string `json:"owner"`
	Name       string `json:"name"`
	ResourceID uint64 `json:"resource_id"`
	PeerID     string `json:"peer_id,omitempty"`
}

// RedistributionFailed is the payload of redistribution.failed
type RedistributionFailed struct {
	ResourceID uint64    `json:"resource_id"`
	Names      []string  `json:"names"`
	DApps      []DAppRef `json:"dapps"`
}

// Publisher accepts events for delivery
type Publisher interface {
	Publish(event *Event)
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish publishes an event to all subscribers
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
		metrics.EventsPublished.WithLabelValues(string(event.Type)).Inc()
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
			metrics.EventsDropped.Inc()
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
