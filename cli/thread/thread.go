package thread

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zvonler/threadgrab/configuration"
	"github.com/zvonler/threadgrab/model"
	"github.com/zvonler/threadgrab/output"
	"github.com/zvonler/threadgrab/present"
	"github.com/zvonler/threadgrab/scraper"
	"github.com/zvonler/threadgrab/utils"
	"go.uber.org/zap"
)

var (
	cookiesPath string
	outputPath  string
)

func NewCommand() *cobra.Command {
	threadCommand := &cobra.Command{
		Use:   "thread <thread-URL>",
		Short: "Extracts the title and posts of a single thread",
		Args:  cobra.ExactArgs(1),
		Example: "" +
			"  " + os.Args[0] + " thread https://groups.google.com/g/golang-nuts/c/abc123 --output thread.json",
		RunE: runThreadCommand,
	}

	threadCommand.Flags().StringVar(&cookiesPath, "cookies", "", "JSON file with authentication cookies")
	threadCommand.Flags().StringVar(&outputPath, "output", "", "JSON file for the thread (prints when empty)")

	return threadCommand
}

func runThreadCommand(cmd *cobra.Command, args []string) error {
	cfg, log, err := configuration.Setup()
	if err != nil {
		return err
	}
	defer log.Sync()
	if cookiesPath != "" {
		cfg.Cookies = cookiesPath
	}

	threadURL := args[0]
	if !utils.HasHTTPScheme(threadURL) {
		return fmt.Errorf("%w: bad URL %q", model.ErrInput, threadURL)
	}

	resolver, err := cfg.Resolver(log)
	if err != nil {
		return err
	}
	engine, _, err := cfg.NewEngine(threadURL, log)
	if err != nil {
		return err
	}

	thread := scraper.NewThreadExtractor(engine, resolver, nil, log).Extract(threadURL)
	if thread == nil {
		return fmt.Errorf("%w: could not fetch %s", model.ErrTransientFetch, threadURL)
	}
	log.Info("Extracted thread",
		zap.String("title", thread.TitleOr("")),
		zap.Int("posts", len(thread.Posts)))

	if outputPath == "" {
		return present.Show(present.Thread(*thread))
	}
	if err := output.WriteJSON(outputPath, thread); err != nil {
		return err
	}
	log.Info("Thread saved", zap.String("path", outputPath))
	return nil
}
