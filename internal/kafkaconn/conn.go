// Package kafkaconn builds kafka-go readers and writers for the configured
// cluster, applying kafka.authentication and kafka.compression.
package kafkaconn

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/correlator-io/kafka-lineage/internal/config"
)

// Supported kafka.authentication values.
const (
	AuthNone      = "none"
	AuthTLS       = "tls"
	AuthSASLPlain = "sasl_plain"
	AuthSASLScram = "sasl_scram"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultDialTimeout  = 10 * time.Second
	defaultMaxAttempts  = 3
	defaultMinBytes     = 1
	defaultMaxBytes     = 10e6
	defaultMaxWait      = 500 * time.Millisecond
)

var (
	// ErrUnsupportedAuthentication indicates kafka.authentication names no supported mechanism.
	ErrUnsupportedAuthentication = errors.New("unsupported kafka authentication")

	// ErrUnsupportedCompression indicates kafka.compression names no supported codec.
	ErrUnsupportedCompression = errors.New("unsupported kafka compression")
)

// Security is the TLS configuration and SASL mechanism for a cluster. Both
// are nil for plaintext, unauthenticated clusters.
type Security struct {
	TLS  *tls.Config
	SASL sasl.Mechanism
}

// NewSecurity derives the connection security from kafka.authentication.
// An empty value means "none". SASL mechanisms always run over TLS.
func NewSecurity(cfg *config.Config) (*Security, error) {
	auth := strings.ToLower(strings.TrimSpace(cfg.Kafka.Authentication))

	switch auth {
	case "", AuthNone:
		return &Security{}, nil
	case AuthTLS:
		tlsConfig, err := newTLSConfig(cfg.Kafka.CACertFile)
		if err != nil {
			return nil, err
		}

		return &Security{TLS: tlsConfig}, nil
	case AuthSASLPlain, AuthSASLScram:
		tlsConfig, err := newTLSConfig(cfg.Kafka.CACertFile)
		if err != nil {
			return nil, err
		}

		mechanism, err := newSASLMechanism(auth, cfg.Kafka.Username, cfg.Kafka.Password)
		if err != nil {
			return nil, err
		}

		return &Security{TLS: tlsConfig, SASL: mechanism}, nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: none, tls, sasl_plain, sasl_scram)",
			ErrUnsupportedAuthentication, cfg.Kafka.Authentication)
	}
}

func newTLSConfig(caCertFile string) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if caCertFile == "" {
		return tlsConfig, nil
	}

	caCert, err := os.ReadFile(caCertFile) //nolint:gosec // path comes from trusted configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA cert %s", caCertFile)
	}

	tlsConfig.RootCAs = pool

	return tlsConfig, nil
}

func newSASLMechanism(auth, username, password string) (sasl.Mechanism, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: %s requires kafka.username and kafka.password", ErrUnsupportedAuthentication, auth)
	}

	if auth == AuthSASLPlain {
		return plain.Mechanism{Username: username, Password: password}, nil
	}

	mechanism, err := scram.Mechanism(scram.SHA512, username, password)
	if err != nil {
		return nil, fmt.Errorf("failed to create SCRAM mechanism: %w", err)
	}

	return mechanism, nil
}

// Compression maps kafka.compression to a kafka-go codec. Empty means none.
func Compression(name string) (compress.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return compress.None, nil
	case "gzip":
		return compress.Gzip, nil
	case "snappy":
		return compress.Snappy, nil
	case "lz4":
		return compress.Lz4, nil
	case "zstd":
		return compress.Zstd, nil
	default:
		return compress.None, fmt.Errorf("%w: %q", ErrUnsupportedCompression, name)
	}
}

// NewWriter returns a synchronous writer for topic on the configured brokers.
func NewWriter(cfg *config.Config, topic string, logger *slog.Logger) (*kafka.Writer, error) {
	if err := cfg.Require(config.KeyKafkaBrokers); err != nil {
		return nil, err
	}

	security, err := NewSecurity(cfg)
	if err != nil {
		return nil, err
	}

	codec, err := Compression(cfg.Kafka.Compression)
	if err != nil {
		return nil, err
	}

	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  defaultMaxAttempts,
		WriteTimeout: defaultWriteTimeout,
		RequiredAcks: kafka.RequireAll,
		Compression:  codec,
		Transport: &kafka.Transport{
			TLS:         security.TLS,
			SASL:        security.SASL,
			DialTimeout: defaultDialTimeout,
		},
		AllowAutoTopicCreation: true,
		ErrorLogger:            errorLogger(logger),
	}, nil
}

// NewReader returns a consumer-group reader for kafka.topic with group kafka.group_id.
// Offsets are committed explicitly.
func NewReader(cfg *config.Config, logger *slog.Logger) (*kafka.Reader, error) {
	if err := cfg.Require(config.KeyKafkaBrokers, config.KeyKafkaTopic, config.KeyKafkaGroupID); err != nil {
		return nil, err
	}

	security, err := NewSecurity(cfg)
	if err != nil {
		return nil, err
	}

	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.Topic,
		GroupID:     cfg.Kafka.GroupID,
		MinBytes:    defaultMinBytes,
		MaxBytes:    defaultMaxBytes,
		MaxWait:     defaultMaxWait,
		StartOffset: kafka.FirstOffset,
		Dialer: &kafka.Dialer{
			Timeout:       defaultDialTimeout,
			DualStack:     true,
			TLS:           security.TLS,
			SASLMechanism: security.SASL,
		},
		ErrorLogger: errorLogger(logger),
	}), nil
}

func errorLogger(logger *slog.Logger) kafka.LoggerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(msg string, args ...interface{}) {
		logger.Error("Kafka internal error", slog.String("error", fmt.Sprintf(msg, args...)))
	}
}
