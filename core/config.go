package core

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rtp-go/rtp/std/rtp"
	"github.com/rtp-go/rtp/std/utils"
)

const (
	// DefaultTimeout is the fixed retransmission interval.
	DefaultTimeout = 500 * time.Millisecond
	// DefaultIdleFactor scales the retransmission interval into the
	// receiver idle timeout and the sender ACK silence period.
	DefaultIdleFactor = 10
)

// Config represents the configuration of both peers.
// Each peer only reads its own section.
type Config struct {
	Core struct {
		// Logging level
		LogLevel string `json:"log_level"`
		// Output log to file
		LogFile string `json:"log_file"`
		// Log format: text or json
		LogFormat string `json:"log_format"`

		// Config file base dir
		BaseDir string `json:"-"`
	} `json:"core"`

	Sender struct {
		// Address of the receiver
		ReceiverAddr string `json:"receiver_addr"`
		// Port of the receiver
		ReceiverPort uint16 `json:"receiver_port"`
		// Local bind address, empty for any
		LocalAddr string `json:"local_addr"`
		// Local bind port, 0 for ephemeral
		LocalPort uint16 `json:"local_port"`
		// Number of in-flight segments
		WindowSize int `json:"window_size"`
		// Retransmission interval (milliseconds)
		Timeout_ms uint64 `json:"timeout"`
		// Bytes per DATA segment
		PayloadSize int `json:"payload_size"`
		// Attempts for START and END before giving up, 0 retries forever
		MaxRetries int `json:"max_retries"`
		// ACK silence period as a multiple of the retransmission interval
		SilenceFactor int `json:"silence_factor"`
	} `json:"sender"`

	Receiver struct {
		// Local bind address
		BindAddr string `json:"bind_addr"`
		// Local bind port
		Port uint16 `json:"port"`
		// Number of buffered out-of-order segments
		WindowSize int `json:"window_size"`
		// Idle session timeout (milliseconds)
		IdleTimeout_ms uint64 `json:"idle_timeout"`
		// Exit after the first session ends with END
		Once bool `json:"once"`
	} `json:"receiver"`
}

// DefaultConfig returns the configuration of the reference peers.
func DefaultConfig() *Config {
	c := &Config{}
	c.Core.LogLevel = "INFO"
	c.Core.LogFile = ""
	c.Core.LogFormat = "text"

	c.Sender.ReceiverAddr = "127.0.0.1"
	c.Sender.ReceiverPort = 0 // invalid
	c.Sender.LocalAddr = ""
	c.Sender.LocalPort = 0
	c.Sender.WindowSize = 0 // invalid
	c.Sender.Timeout_ms = utils.ToMillis[uint64](DefaultTimeout)
	c.Sender.PayloadSize = rtp.MaxDataSize
	c.Sender.MaxRetries = 0
	c.Sender.SilenceFactor = DefaultIdleFactor

	c.Receiver.BindAddr = "127.0.0.1"
	c.Receiver.Port = 0 // invalid
	c.Receiver.WindowSize = 0 // invalid
	c.Receiver.IdleTimeout_ms = utils.ToMillis[uint64](DefaultIdleFactor * DefaultTimeout)
	c.Receiver.Once = false

	return c
}

// Timeout is the sender retransmission interval.
func (c *Config) Timeout() time.Duration {
	return utils.Millis(c.Sender.Timeout_ms)
}

// SilencePeriod is how long the sender waits without ACKs before tearing down.
func (c *Config) SilencePeriod() time.Duration {
	return time.Duration(c.Sender.SilenceFactor) * c.Timeout()
}

// IdleTimeout is the receiver session idle timeout.
func (c *Config) IdleTimeout() time.Duration {
	return utils.Millis(c.Receiver.IdleTimeout_ms)
}

// ValidateCore checks the logging section.
func (c *Config) ValidateCore() error {
	switch c.Core.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.Core.LogFormat)
	}
	return nil
}

// ValidateSender checks the sender section.
func (c *Config) ValidateSender() error {
	if err := c.ValidateCore(); err != nil {
		return err
	}
	s := &c.Sender
	if s.ReceiverAddr == "" || s.ReceiverPort == 0 {
		return fmt.Errorf("receiver address and port must be set")
	}
	if s.WindowSize < 1 {
		return fmt.Errorf("window size must be positive, got %d", s.WindowSize)
	}
	if s.PayloadSize < 1 || s.PayloadSize > rtp.MaxDataSize {
		return fmt.Errorf("payload size must be in [1, %d], got %d", rtp.MaxDataSize, s.PayloadSize)
	}
	if s.Timeout_ms == 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	if s.SilenceFactor < 2 {
		return fmt.Errorf("silence factor must be at least 2, got %d", s.SilenceFactor)
	}
	return nil
}

// ValidateReceiver checks the receiver section.
func (c *Config) ValidateReceiver() error {
	if err := c.ValidateCore(); err != nil {
		return err
	}
	r := &c.Receiver
	if r.Port == 0 {
		return fmt.Errorf("receiver port must be set")
	}
	if r.WindowSize < 1 {
		return fmt.Errorf("window size must be positive, got %d", r.WindowSize)
	}
	// The idle timeout has to outlast the sender's START retries.
	if c.IdleTimeout() < 2*DefaultTimeout {
		return fmt.Errorf("idle timeout must be at least %s", 2*DefaultTimeout)
	}
	return nil
}

// ResolveRelPath resolves a possibly relative path based on config file path.
func (c *Config) ResolveRelPath(target string) string {
	if filepath.IsAbs(target) {
		return target
	}
	return filepath.Join(c.Core.BaseDir, target)
}
