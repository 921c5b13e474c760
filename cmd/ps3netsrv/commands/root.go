// Package commands implements the ps3netsrv command line.
package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/marmos91/ps3netsrv/pkg/adapter/netiso"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// options holds the flags that are not configuration keys.
type options struct {
	configFile string
}

// NewRootCmd builds the ps3netsrv command tree. Running it without a
// subcommand serves the configured folder.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "ps3netsrv",
		Short: "ps3netsrv - serve games and disc images to a PS3 over the network",
		Long: `ps3netsrv serves a folder to a PS3 running webMAN or multiMAN using the
netiso protocol. ISO images are streamed as they are, decrypted on the fly when
a disc key is available, and plain game folders are presented as virtual ISO
images built on demand.

All settings can come from a config file, PS3NETSRV_* environment variables
or the flags below, with flags taking precedence.

Examples:
  # Serve the current directory on the default port
  ps3netsrv

  # Legacy style
  ps3netsrv -F /srv/ps3 -P 38008 -M 2 -R true -T ALLOWED -I 192.168.1.20,192.168.1.21

  # Use a config file
  ps3netsrv serve --config /etc/ps3netsrv/config.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	addServerFlags(root.PersistentFlags())
	root.PersistentFlags().StringVar(&opts.configFile, "config", "",
		"config file (default: $XDG_CONFIG_HOME/ps3netsrv/config.yaml)")
	// The legacy daemon uses -H for help.
	root.PersistentFlags().BoolP("help", "H", false, "show this help message and exit")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newVersionCmd())
	root.AddCommand(newConfigCmd(opts))
	root.AddCommand(newISOCmd())

	root.CompletionOptions.DisableDefaultCmd = true
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return flagError{err}
	})

	return root
}

// addServerFlags registers the flags mapped onto configuration keys by
// config.FlagKeys. Defaults shown here are informational: unset flags never
// override the config file or the environment.
func addServerFlags(flags *pflag.FlagSet) {
	flags.StringP("folder", "F", "", "folder to serve (default: current directory)")
	flags.IntP("port", "P", netiso.DefaultPort, "TCP port")
	flags.IntP("max-connections", "M", 0, "max. allowed connections, 0 = unlimited")
	flags.BoolP("read-only", "R", false, "reject commands that modify the served folder (true|false)")
	flags.StringP("filter", "T", string(netiso.FilterNone), "address filter: NONE, ALLOWED or BLOCKED")
	flags.StringSliceP("addresses", "I", nil, "filter addresses, IPs or CIDRs separated by commas")
	flags.StringSlice("listen", nil, "listen addresses (default: all interfaces)")
	flags.String("log-level", "", "log level: DEBUG, INFO, WARN or ERROR")
	flags.String("log-format", "", "log format: text or json")
	flags.String("log-output", "", "log output: stdout, stderr or a file path")
	flags.Bool("metrics", false, "serve Prometheus metrics")
	flags.Int("metrics-port", 0, "metrics HTTP port (default 9090)")
}

// flagError marks a command line parsing failure.
type flagError struct{ err error }

func (e flagError) Error() string { return "invalid option: " + e.err.Error() }
func (e flagError) Unwrap() error { return e.err }
