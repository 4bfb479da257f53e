// Package bridge gateways DDS topics onto NATS subjects. It forwards raw
// CDR payloads in both directions, so foreign types flow through without
// this process knowing their schema.
package bridge

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dataflume/flumedds/dds"
	"github.com/dataflume/flumedds/qos"
	"github.com/dataflume/flumedds/rtps"
)

// TopicRoute maps one DDS topic onto the NATS subject space.
type TopicRoute struct {
	// Name is the DDS topic name.
	Name string
	// TypeName is advertised for the topic in discovery.
	TypeName string
	// Reliable selects reliable DDS endpoints for the route.
	Reliable bool
}

// Config configures the gateway.
type Config struct {
	// URL is the NATS server to connect to.
	URL string
	// SubjectPrefix roots every subject, default "dds".
	SubjectPrefix string
	// Routes lists the topics to forward.
	Routes []TopicRoute
}

// DefaultConfig returns a gateway configuration with the standard prefix.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "dds",
	}
}

// Validate rejects configurations that cannot work.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("bridge: NATS URL is required")
	}
	if len(c.Routes) == 0 {
		return fmt.Errorf("bridge: at least one route is required")
	}
	for i, r := range c.Routes {
		if r.Name == "" {
			return fmt.Errorf("bridge: route %d has no topic name", i)
		}
		if strings.ContainsAny(r.Name, " \t") {
			return fmt.Errorf("bridge: topic %q cannot map to a subject", r.Name)
		}
	}
	return nil
}

// route is one live forwarding pair.
type route struct {
	cfg    TopicRoute
	reader *dds.DataReader[[]byte]
	writer *dds.DataWriter[[]byte]
	sub    *nats.Subscription
}

// Bridge forwards samples between one DDS participant and one NATS
// connection.
type Bridge struct {
	cfg    Config
	dp     *dds.DomainParticipant
	logger *slog.Logger

	mu      sync.Mutex
	conn    *nats.Conn
	routes  []*route
	running bool
	done    chan struct{}
	wg      sync.WaitGroup

	toNATS atomic.Int64
	toDDS  atomic.Int64
}

// New creates a gateway on an already running participant.
func New(cfg Config, dp *dds.DomainParticipant, logger *slog.Logger) (*Bridge, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "dds"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		cfg:    cfg,
		dp:     dp,
		logger: logger.With("component", "bridge"),
		done:   make(chan struct{}),
	}, nil
}

// SubjectFor returns the NATS subject carrying samples published on the
// DDS topic. Inbound traffic uses the same subject with ".in" appended.
func (b *Bridge) SubjectFor(topic string) string {
	return subjectFor(b.cfg.SubjectPrefix, topic)
}

func subjectFor(prefix, topic string) string {
	// NATS subjects use "." as a hierarchy separator; DDS topic names
	// may contain it, so it is replaced to keep one token per topic.
	return prefix + "." + strings.ReplaceAll(topic, ".", "_")
}

// Start connects to NATS and opens the DDS endpoints for every route.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return fmt.Errorf("bridge: already running")
	}

	conn, err := nats.Connect(b.cfg.URL,
		nats.Name("flumedds-bridge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return fmt.Errorf("bridge: connect to NATS: %w", err)
	}
	b.conn = conn

	publisher, err := b.dp.CreatePublisher(qos.Policies{})
	if err != nil {
		conn.Close()
		return err
	}
	subscriber, err := b.dp.CreateSubscriber(qos.Policies{})
	if err != nil {
		conn.Close()
		return err
	}

	for _, rc := range b.cfg.Routes {
		r, err := b.openRoute(rc, publisher, subscriber)
		if err != nil {
			b.closeRoutesLocked()
			conn.Close()
			return err
		}
		b.routes = append(b.routes, r)
	}

	b.running = true
	b.logger.Info("bridge started",
		"url", b.cfg.URL, "routes", len(b.routes))
	return nil
}

func (b *Bridge) openRoute(rc TopicRoute, publisher *dds.Publisher, subscriber *dds.Subscriber) (*route, error) {
	builder := qos.NewBuilder().KeepLast(64)
	if rc.Reliable {
		builder = builder.Reliable(rtps.DurationFromStd(time.Second))
	} else {
		builder = builder.BestEffort()
	}
	policies := builder.Build()

	typeName := rc.TypeName
	if typeName == "" {
		typeName = rc.Name
	}
	topic, err := b.dp.CreateTopic(rc.Name, typeName, policies)
	if err != nil {
		return nil, err
	}

	reader, err := dds.CreateDataReader[[]byte](subscriber, topic, qos.Policies{})
	if err != nil {
		return nil, err
	}
	writer, err := dds.CreateDataWriter[[]byte](publisher, topic, qos.Policies{})
	if err != nil {
		reader.Close()
		return nil, err
	}

	r := &route{cfg: rc, reader: reader, writer: writer}

	subject := b.SubjectFor(rc.Name)
	sub, err := b.conn.Subscribe(subject+".in", func(msg *nats.Msg) {
		if err := writer.Write(msg.Data); err != nil {
			b.logger.Warn("inbound write failed",
				"topic", rc.Name, "error", err)
			return
		}
		b.toDDS.Add(1)
	})
	if err != nil {
		reader.Close()
		writer.Close()
		return nil, fmt.Errorf("bridge: subscribe %s: %w", subject, err)
	}
	r.sub = sub

	b.wg.Add(1)
	go b.forwardToNATS(r, subject)
	return r, nil
}

// forwardToNATS drains one route's DDS reader into its NATS subject.
func (b *Bridge) forwardToNATS(r *route, subject string) {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case sample, ok := <-r.reader.Samples():
			if !ok {
				return
			}
			if !sample.Info.ValidData {
				continue
			}
			if sample.Info.Writer == r.writer.GUID() {
				// Skip traffic this bridge itself injected; otherwise
				// every inbound message would echo straight back out.
				continue
			}
			if err := b.conn.Publish(subject, sample.Value); err != nil {
				b.logger.Warn("outbound publish failed",
					"topic", r.cfg.Name, "error", err)
				continue
			}
			b.toNATS.Add(1)
		}
	}
}

// Forwarded reports the number of samples moved in each direction.
func (b *Bridge) Forwarded() (toNATS, toDDS int64) {
	return b.toNATS.Load(), b.toDDS.Load()
}

func (b *Bridge) closeRoutesLocked() {
	for _, r := range b.routes {
		if r.sub != nil {
			r.sub.Unsubscribe()
		}
		r.writer.Close()
		r.reader.Close()
	}
	b.routes = nil
}

// Stop drains the routes and closes the NATS connection. The participant
// stays open; the bridge does not own it.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.done)
	b.closeRoutesLocked()
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()

	b.wg.Wait()
	conn.Close()
	b.logger.Info("bridge stopped",
		"toNATS", b.toNATS.Load(), "toDDS", b.toDDS.Load())
}
