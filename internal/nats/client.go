// Package nats publishes committed daily entries to NATS JetStream.
package nats

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/smart-daily/dailychat/pkg/logger"
)

// ErrNotConnected is returned by Ping while the connection is down.
var ErrNotConnected = errors.New("nats: not connected")

// Config describes how the agent reaches the broker. Mutual TLS is used
// only when all three files are set.
type Config struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string

	// ClientName identifies the connection in server monitoring.
	ClientName string
}

func (c Config) mutualTLS() bool {
	return c.CAFile != "" && c.CertFile != "" && c.KeyFile != ""
}

// options translates the config into connection options. Reconnects are
// unbounded so a broker restart never takes the agent down.
func (c Config) options(log *logger.Logger) ([]nats.Option, error) {
	name := c.ClientName
	if name == "" {
		name = "dailychat-agent"
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("broker connection lost", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("broker connection restored", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			log.Error("broker error", fields...)
		}),
	}

	if c.mutualTLS() {
		tlsConfig, err := loadTLS(c.CAFile, c.CertFile, c.KeyFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}
	if c.Token != "" {
		opts = append(opts, nats.Token(c.Token))
	}
	return opts, nil
}

// Client owns the broker connection and its JetStream context.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
	log  *logger.Logger
}

// Connect dials the broker described by cfg.
func Connect(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	log = logger.OrNop(log).Named("nats")

	opts, err := cfg.options(log)
	if err != nil {
		return nil, fmt.Errorf("failed to configure NATS: %w", err)
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	log.Info("connected to broker",
		zap.String("url", nc.ConnectedUrl()),
		zap.Bool("tls", cfg.mutualTLS()),
	)
	return &Client{conn: nc, js: js, log: log}, nil
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Ping round-trips to the server, failing fast while disconnected.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.conn == nil || !c.conn.IsConnected() {
		return ErrNotConnected
	}
	return c.conn.FlushWithContext(ctx)
}

// Close drains pending publishes, then closes the connection.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.log.Warn("drain failed, closing", zap.Error(err))
		c.conn.Close()
	}
}

func loadTLS(caFile, certFile, keyFile string) (*tls.Config, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates in %s", caFile)
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}
	return &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
