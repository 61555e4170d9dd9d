package list

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/zvonler/threadgrab/cli/scrape"
	"github.com/zvonler/threadgrab/configuration"
	"github.com/zvonler/threadgrab/output"
	"github.com/zvonler/threadgrab/present"
	"go.uber.org/zap"
)

var (
	maxPages    int
	cookiesPath string
	outputPath  string
)

func NewCommand() *cobra.Command {
	listCommand := &cobra.Command{
		Use:   "list <group-URL>",
		Short: "Builds the list of thread URLs of a group",
		Args:  cobra.ExactArgs(1),
		Example: "" +
			"  # Writes a URL list for the batch command\n" +
			"  " + os.Args[0] + " list https://groups.google.com/g/golang-nuts --pages 5 --output urls.txt",
		RunE: runListCommand,
	}

	listCommand.Flags().IntVar(&maxPages, "pages", 5, "Maximum number of listing pages")
	listCommand.Flags().StringVar(&cookiesPath, "cookies", "", "JSON file with authentication cookies")
	listCommand.Flags().StringVar(&outputPath, "output", "", "File for the URL list, one per line (prints when empty)")

	return listCommand
}

func runListCommand(cmd *cobra.Command, args []string) error {
	cfg, log, err := configuration.Setup()
	if err != nil {
		return err
	}
	defer log.Sync()
	if cookiesPath != "" {
		cfg.Cookies = cookiesPath
	}

	result, _, _, err := scrape.WalkGroup(cfg, args[0], maxPages, log)
	if err != nil {
		return err
	}
	if err := scrape.RequireTopics(args[0], result.Topics); err != nil {
		return err
	}
	log.Info("Collected thread URLs",
		zap.Int("count", len(result.Topics)),
		zap.Int("pages", len(result.Pages)),
		zap.Stringer("state", result.State))

	if outputPath == "" {
		return present.Show(present.Topics(result.Topics))
	}
	if err := output.WriteURLList(outputPath, result.Topics); err != nil {
		return err
	}
	log.Info("URL list saved", zap.String("path", outputPath))
	return nil
}
