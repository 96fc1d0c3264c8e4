package sender

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rtp-go/rtp/core"
	"github.com/rtp-go/rtp/std/link"
	"github.com/rtp-go/rtp/std/utils"
	"github.com/rtp-go/rtp/std/utils/toolutils"
	"github.com/spf13/cobra"
)

type tool struct {
	config *core.Config

	timeout     uint64
	payloadSize int
	local       string
	maxRetries  int
	dropEvery   int
	dupEvery    int
	stats       bool
}

// CmdSender returns the "sender" command. Settings from the config file
// are overridden by flags and positional arguments.
func CmdSender(config *core.Config) *cobra.Command {
	t := &tool{config: config}
	return t.command()
}

func (t *tool) command() *cobra.Command {
	cmd := &cobra.Command{
		GroupID: "peers",
		Use:     "sender RECEIVER-IP RECEIVER-PORT WINDOW-SIZE",
		Short:   "Send standard input to a receiver",
		Long: `Send standard input to an RTP receiver.
The sender exits after the receiver acknowledged the end of the stream.`,
		Args:    cobra.ExactArgs(3),
		Example: `  rtp sender 127.0.0.1 9000 16 < data.bin`,
		RunE:    t.run,
	}

	cmd.Flags().Uint64Var(&t.timeout, "timeout", utils.ToMillis[uint64](core.DefaultTimeout), "retransmission interval, in milliseconds")
	cmd.Flags().IntVar(&t.payloadSize, "payload-size", 0, "bytes per DATA segment")
	cmd.Flags().StringVar(&t.local, "local", "", "local bind address, as HOST or HOST:PORT")
	cmd.Flags().IntVar(&t.maxRetries, "max-retries", 0, "give up after this many START or END attempts, 0 for never")
	cmd.Flags().IntVar(&t.dropEvery, "drop-every", 0, "drop every Nth outgoing datagram (testing)")
	cmd.Flags().IntVar(&t.dupEvery, "dup-every", 0, "duplicate every Nth outgoing datagram (testing)")
	cmd.Flags().BoolVar(&t.stats, "stats", false, "print transfer statistics to stderr")
	return cmd
}

func (t *tool) String() string {
	return "sender-cmd"
}

func (t *tool) apply(cmd *cobra.Command, args []string) error {
	c := t.config
	c.Sender.ReceiverAddr = args[0]

	port, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return fmt.Errorf("receiver port %q: %w", args[1], err)
	}
	c.Sender.ReceiverPort = uint16(port)

	window, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("window size %q: %w", args[2], err)
	}
	c.Sender.WindowSize = window

	flags := cmd.Flags()
	if flags.Changed("timeout") {
		c.Sender.Timeout_ms = t.timeout
	}
	if flags.Changed("payload-size") {
		c.Sender.PayloadSize = t.payloadSize
	}
	if flags.Changed("max-retries") {
		c.Sender.MaxRetries = t.maxRetries
	}
	if flags.Changed("local") {
		host, lport, err := net.SplitHostPort(t.local)
		if err != nil {
			host, lport = t.local, "0"
		}
		p, err := strconv.ParseUint(lport, 10, 16)
		if err != nil {
			return fmt.Errorf("local port %q: %w", lport, err)
		}
		c.Sender.LocalAddr = host
		c.Sender.LocalPort = uint16(p)
	}

	return c.ValidateSender()
}

func (t *tool) run(cmd *cobra.Command, args []string) error {
	if err := t.apply(cmd, args); err != nil {
		return &core.ConfigError{Err: err}
	}
	c := t.config

	remote, err := net.ResolveUDPAddr("udp",
		net.JoinHostPort(c.Sender.ReceiverAddr, strconv.Itoa(int(c.Sender.ReceiverPort))))
	if err != nil {
		return &core.ConfigError{Err: err}
	}

	local := net.JoinHostPort(c.Sender.LocalAddr, strconv.Itoa(int(c.Sender.LocalPort)))
	conn, err := link.Listen(cmd.Context(), "udp", local)
	if err != nil {
		return core.Fatal("bind "+local, err)
	}

	imp := link.Impairment{DropEvery: t.dropEvery, DupEvery: t.dupEvery}
	var lossy *link.LossyConn
	if imp.Enabled() {
		lossy = link.NewLossyConn(conn, imp)
		conn = lossy
		core.Log.Warn(t, "Impairing outgoing datagrams", "conn", lossy)
	}

	snd := New(conn, remote, Options{
		WindowSize:    c.Sender.WindowSize,
		PayloadSize:   c.Sender.PayloadSize,
		Timeout:       c.Timeout(),
		SilencePeriod: c.SilencePeriod(),
		MaxRetries:    c.Sender.MaxRetries,
	})

	stats, err := snd.Run(cmd.Context(), os.Stdin)
	if t.stats {
		p := toolutils.StatusPrinter{File: os.Stderr, Padding: 16}
		p.Print("receiver", remote)
		p.Print("bytes", stats.BytesRead)
		p.Print("segments", stats.SegmentsSent)
		p.Print("retransmissions", stats.Retransmissions)
		p.Print("acks", stats.AcksReceived)
		p.Print("digest", fmt.Sprintf("%016x", stats.Digest))
		p.Print("elapsed", stats.Elapsed.Round(time.Millisecond))
		if lossy != nil {
			p.Print("dropped", lossy.Dropped())
			p.Print("duplicated", lossy.Duplicated())
		}
	}
	return err
}
