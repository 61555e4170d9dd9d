package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zvonler/threadgrab/cli/archive"
	"github.com/zvonler/threadgrab/cli/batch"
	"github.com/zvonler/threadgrab/cli/browser"
	"github.com/zvonler/threadgrab/cli/list"
	"github.com/zvonler/threadgrab/cli/scrape"
	"github.com/zvonler/threadgrab/cli/thread"
	"github.com/zvonler/threadgrab/configuration"
	"github.com/zvonler/threadgrab/fetch"
	"github.com/zvonler/threadgrab/session"
)

var (
	cfgFile   string
	selectors string
	verbose   bool
	retries   int
	timeout   time.Duration
	userAgent string
	initErr   error
)

func NewCommand() *cobra.Command {
	threadgrabCli := &cobra.Command{
		Use:     "threadgrab",
		Short:   "Threadgrab CLI",
		Long:    "Extracts topic listings and thread contents from web forums",
		Example: fmt.Sprintf("  %s <command> [flags...]", os.Args[0]),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initErr
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cobra.OnInitialize(func() {
		initErr = configuration.InitConfig(cfgFile)
	})

	defaults := fetch.DefaultOptions()
	flags := threadgrabCli.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default is $HOME/.threadgrab.yaml)")
	flags.StringVar(&selectors, "selectors", "", "YAML file overriding selector strategies")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.IntVar(&retries, "retries", defaults.Retries, "Retries after a failed fetch")
	flags.DurationVar(&timeout, "timeout", defaults.Timeout, "Timeout of a single request")
	flags.StringVar(&userAgent, "user-agent", session.DefaultUserAgent, `User agent, or "random"`)

	viper.BindPFlag("selectors", flags.Lookup("selectors"))
	viper.BindPFlag("verbose", flags.Lookup("verbose"))
	viper.BindPFlag("retries", flags.Lookup("retries"))
	viper.BindPFlag("timeout", flags.Lookup("timeout"))
	viper.BindPFlag("user-agent", flags.Lookup("user-agent"))

	threadgrabCli.AddCommand(list.NewCommand())
	threadgrabCli.AddCommand(scrape.NewCommand())
	threadgrabCli.AddCommand(thread.NewCommand())
	threadgrabCli.AddCommand(batch.NewCommand())
	threadgrabCli.AddCommand(browser.NewCommand())
	threadgrabCli.AddCommand(archive.NewCommand())

	return threadgrabCli
}
