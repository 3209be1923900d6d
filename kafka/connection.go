// Package kafka publishes deployment events to Kafka.
package kafka

import (
	"context"
	"crypto/tls"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/Skyrin/go-deploy/e"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
)

const (
	ECode060101 = e.Code0601 + "01"
	ECode060102 = e.Code0601 + "02"
	ECode060103 = e.Code0601 + "03"
	ECode060104 = e.Code0601 + "04"
	ECode060105 = e.Code0601 + "05"
	ECode060106 = e.Code0601 + "06"
	ECode060107 = e.Code0601 + "07"
	ECode060108 = e.Code0601 + "08"

	defaultTimeout = 10 * time.Second
)

// ConnectionConfig for NewConn
type ConnectionConfig struct {
	AddressList   []string
	NoTLS         bool
	SASLMechanism sasl.Mechanism
	Timeout       time.Duration // defaults to 10 seconds
	TLS           *tls.Config
}

// Connection the brokers of a cluster, with the dialer and transport
// configured for them
type Connection struct {
	addressList []string
	dialer      *kafka.Dialer
	transport   *kafka.Transport
}

// NewConn initializes a new connection. No broker is contacted until
// Ping or a writer is used.
func NewConn(conf ConnectionConfig) (c *Connection, err error) {
	if len(conf.AddressList) == 0 {
		return nil, e.N(ECode060101, "no address")
	}

	if conf.Timeout == 0 {
		conf.Timeout = defaultTimeout
	}

	dialer := &kafka.Dialer{
		DualStack:     true,
		Timeout:       conf.Timeout,
		SASLMechanism: conf.SASLMechanism,
	}
	transport := &kafka.Transport{
		DialTimeout: conf.Timeout,
		SASL:        conf.SASLMechanism,
	}

	if conf.TLS != nil {
		dialer.TLS = conf.TLS
		transport.TLS = conf.TLS
	} else if !conf.NoTLS {
		dialer.TLS = &tls.Config{}
		transport.TLS = &tls.Config{}
	}

	return &Connection{
		addressList: conf.AddressList,
		dialer:      dialer,
		transport:   transport,
	}, nil
}

// AddressList returns the broker addresses
func (c *Connection) AddressList() []string {
	return c.addressList
}

// dial opens a connection to a random broker of the list
func (c *Connection) dial(ctx context.Context) (conn *kafka.Conn, err error) {
	idx := rand.Intn(len(c.addressList))
	conn, err = c.dialer.DialContext(ctx, "tcp", c.addressList[idx])
	if err != nil {
		return nil, e.W(err, ECode060102, c.addressList[idx])
	}

	return conn, nil
}

// Ping checks a broker can be reached
func (c *Connection) Ping(ctx context.Context) (err error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return e.W(err, ECode060103)
	}

	if err := conn.Close(); err != nil {
		log.Warn().Err(err).Msgf("[%s]failed to close connection", ECode060104)
	}

	return nil
}

// CreateTopics creates the topics on the cluster controller
func (c *Connection) CreateTopics(ctx context.Context, tcList ...kafka.TopicConfig) (err error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return e.W(err, ECode060105)
	}
	defer conn.Close()

	broker, err := conn.Controller()
	if err != nil {
		return e.W(err, ECode060106)
	}

	cc, err := c.dialer.DialContext(ctx, "tcp",
		net.JoinHostPort(broker.Host, strconv.Itoa(broker.Port)))
	if err != nil {
		return e.W(err, ECode060107)
	}
	defer cc.Close()

	if err := cc.CreateTopics(tcList...); err != nil {
		return e.W(err, ECode060108)
	}

	return nil
}

// NewWriter returns a writer for the topic using this connection's address
// list and transport. Messages with the same key go to the same partition.
func (c *Connection) NewWriter(topic string) (w *kafka.Writer) {
	return &kafka.Writer{
		Addr:         kafka.TCP(c.addressList...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Transport:    c.transport,
	}
}
