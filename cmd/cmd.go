package cmd

import (
	"path/filepath"

	"github.com/rtp-go/rtp/core"
	"github.com/rtp-go/rtp/receiver"
	"github.com/rtp-go/rtp/sender"
	"github.com/rtp-go/rtp/std/utils"
	"github.com/rtp-go/rtp/std/utils/toolutils"
	"github.com/spf13/cobra"
)

const banner = `
  ____ _____ ____
 |  _ \_   _|  _ \
 | |_) || | | |_) |
 |  _ < | | |  __/
 |_| \_\|_| |_|

Reliable Transport Protocol over UDP
`

var config = core.DefaultConfig()

var flags struct {
	configFile string
	logLevel   string
	logFile    string
	logJson    bool
}

var CmdRTP = &cobra.Command{
	Use:               "rtp",
	Short:             "Reliable Transport Protocol over UDP",
	Long:              banner[1:],
	Version:           utils.RTPVersion,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) { core.CloseLogger() },
	SilenceErrors:     true,
}

func init() {
	cobra.EnableCommandSorting = false
	CmdRTP.Root().CompletionOptions.HiddenDefaultCmd = true
	CmdRTP.PersistentFlags().BoolP("help", "h", false, "Print usage")
	CmdRTP.PersistentFlags().Lookup("help").Hidden = true

	CmdRTP.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "YAML configuration file")
	CmdRTP.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	CmdRTP.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "write logs to file instead of stderr")
	CmdRTP.PersistentFlags().BoolVar(&flags.logJson, "log-json", false, "log in JSON format")

	CmdRTP.AddGroup(&cobra.Group{ID: "peers", Title: "RTP Peers"})
	CmdRTP.AddCommand(sender.CmdSender(config))
	CmdRTP.AddCommand(receiver.CmdReceiver(config))
}

// setup loads the configuration file and opens the logger.
func setup(cmd *cobra.Command, _ []string) error {
	// arguments were accepted, errors from here on are not usage errors
	cmd.SilenceUsage = true

	if flags.configFile != "" {
		if err := toolutils.ReadYaml(config, flags.configFile); err != nil {
			return &core.ConfigError{Err: err}
		}
		config.Core.BaseDir = filepath.Dir(flags.configFile)
	}

	pf := cmd.Flags()
	if pf.Changed("log-level") {
		config.Core.LogLevel = flags.logLevel
	}
	if pf.Changed("log-file") {
		config.Core.LogFile = flags.logFile
	}
	if pf.Changed("log-json") {
		config.Core.LogFormat = utils.If(flags.logJson, "json", "text")
	}

	if err := config.ValidateCore(); err != nil {
		return &core.ConfigError{Err: err}
	}
	if err := core.OpenLogger(config); err != nil {
		if core.IsFatal(err) {
			return err
		}
		return &core.ConfigError{Err: err}
	}
	return nil
}
