package receiver

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/rtp-go/rtp/core"
	"github.com/rtp-go/rtp/std/link"
	"github.com/spf13/cobra"
)

type tool struct {
	config *core.Config

	bind        string
	idleTimeout uint64
	once        bool
}

// CmdReceiver returns the "receiver" command. Settings from the config
// file are overridden by flags and positional arguments.
func CmdReceiver(config *core.Config) *cobra.Command {
	t := &tool{config: config}
	return t.command()
}

func (t *tool) command() *cobra.Command {
	cmd := &cobra.Command{
		GroupID: "peers",
		Use:     "receiver RECEIVER-PORT WINDOW-SIZE",
		Short:   "Receive a stream and write it to standard output",
		Long: `Receive RTP sessions and write the delivered bytes to standard output.
Sessions are served one at a time until interrupted.`,
		Args:    cobra.ExactArgs(2),
		Example: `  rtp receiver 9000 16 > data.bin`,
		RunE:    t.run,
	}

	cmd.Flags().StringVar(&t.bind, "bind", "", "local bind address")
	cmd.Flags().Uint64Var(&t.idleTimeout, "idle-timeout", 0, "drop a silent session after this many milliseconds")
	cmd.Flags().BoolVar(&t.once, "once", false, "exit after the first session ends")
	return cmd
}

func (t *tool) String() string {
	return "receiver-cmd"
}

func (t *tool) apply(cmd *cobra.Command, args []string) error {
	c := t.config

	port, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		return fmt.Errorf("receiver port %q: %w", args[0], err)
	}
	c.Receiver.Port = uint16(port)

	window, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("window size %q: %w", args[1], err)
	}
	c.Receiver.WindowSize = window

	flags := cmd.Flags()
	if flags.Changed("bind") {
		c.Receiver.BindAddr = t.bind
	}
	if flags.Changed("idle-timeout") {
		c.Receiver.IdleTimeout_ms = t.idleTimeout
	}
	if flags.Changed("once") {
		c.Receiver.Once = t.once
	}

	return c.ValidateReceiver()
}

func (t *tool) run(cmd *cobra.Command, args []string) error {
	if err := t.apply(cmd, args); err != nil {
		return &core.ConfigError{Err: err}
	}
	c := t.config

	addr := net.JoinHostPort(c.Receiver.BindAddr, strconv.Itoa(int(c.Receiver.Port)))
	conn, err := link.Listen(cmd.Context(), "udp", addr)
	if err != nil {
		return core.Fatal("bind "+addr, err)
	}

	rcv := New(conn, os.Stdout, Options{
		WindowSize:  c.Receiver.WindowSize,
		IdleTimeout: c.IdleTimeout(),
		Once:        c.Receiver.Once,
	})
	err = rcv.Run(cmd.Context())

	cnt := rcv.Counters()
	core.Log.Info(t, "Receiver stopped",
		"sessions", cnt.NSessions,
		"bytes", cnt.NDelivered,
		"duplicates", cnt.NDuplicates,
		"overflows", cnt.NOverflows,
		"dropped", cnt.NDropped,
		"idle", cnt.NIdleResets)
	return err
}
