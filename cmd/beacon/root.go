package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type rootFlags struct {
	configFile  string
	server      string
	sessionPath string
	caCert      string
	insecure    bool
	debug       bool
}

// state carries the wired application from PersistentPreRunE to subcommands.
type state struct {
	flags rootFlags
	v     *viper.Viper
	app   *app
}

func newRootCmd() *cobra.Command {
	st := &state{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "beacon",
		Short:         "safety-beacon client",
		Long:          "beacon signs caretakers and patients in, links them, and manages the patient's saved places.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			a, err := wireApp(cmd, st)
			if err != nil {
				return err
			}
			st.app = a
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if st.app != nil {
				_ = st.app.log.Sync()
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&st.flags.configFile, "config", "", "config file (TOML)")
	pf.StringVar(&st.flags.server, "server", "", "server base URL")
	pf.StringVar(&st.flags.sessionPath, "session", "", "session cache file")
	pf.StringVar(&st.flags.caCert, "cacert", "", "CA cert (PEM)")
	pf.BoolVar(&st.flags.insecure, "insecure", false, "skip cert verify (dev)")
	pf.BoolVar(&st.flags.debug, "debug", false, "verbose logging to stderr")
	_ = st.v.BindPFlag("client.server_url", pf.Lookup("server"))
	_ = st.v.BindPFlag("client.session_path", pf.Lookup("session"))
	_ = st.v.BindPFlag("client.ca_cert", pf.Lookup("cacert"))
	_ = st.v.BindPFlag("client.insecure", pf.Lookup("insecure"))

	rootCmd.AddCommand(
		newVersionCmd(),
		newRegisterCmd(st),
		newLoginCmd(st),
		newLogoutCmd(st),
		newWhoamiCmd(st),
		newLinkCmd(st),
		newBookmarksCmd(st),
		newNavigateCmd(st),
		newGeocodeCmd(st),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "beacon %s (%s)\n", version, buildDate)
			return err
		},
	}
}

// ctx bounds a command by the configured client timeout.
func (st *state) ctx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), st.app.cfg.Timeout)
}
