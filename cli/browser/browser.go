package browser

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/zvonler/threadgrab/browser"
	"github.com/zvonler/threadgrab/cli/scrape"
	"github.com/zvonler/threadgrab/configuration"
	"github.com/zvonler/threadgrab/model"
	"github.com/zvonler/threadgrab/output"
	"github.com/zvonler/threadgrab/present"
	"go.uber.org/zap"
)

var (
	maxTopics   int
	maxThreads  int
	withContent bool
	visible     bool
	storePath   string
	outputPath  string
)

func NewCommand() *cobra.Command {
	browserCommand := &cobra.Command{
		Use:   "browser <group-name | group-URL>",
		Short: "Lists the topics of a group through a logged in headless browser",
		Args:  cobra.ExactArgs(1),
		Example: "" +
			"  # Logs in with GOOGLE_EMAIL and GOOGLE_PASSWORD, reusing saved cookies\n" +
			"  " + os.Args[0] + " browser golang-nuts --topics 20 --output topics.json",
		RunE: runBrowserCommand,
	}

	browserCommand.Flags().IntVar(&maxTopics, "topics", 20, "Maximum number of topics")
	browserCommand.Flags().IntVar(&maxThreads, "threads", 0, "Maximum number of threads to extract content from (0 for all)")
	browserCommand.Flags().BoolVar(&withContent, "content", false, "Extract thread contents in addition to the topics")
	browserCommand.Flags().BoolVar(&visible, "visible", false, "Show the browser window, for manual login steps")
	browserCommand.Flags().StringVar(&storePath, "cookies", "", "Saved browser session (default from cookie-store setting)")
	browserCommand.Flags().StringVar(&outputPath, "output", "", "JSON file for the results (prints when empty)")

	return browserCommand
}

func runBrowserCommand(cmd *cobra.Command, args []string) error {
	cfg, log, err := configuration.Setup()
	if err != nil {
		return err
	}
	defer log.Sync()
	if storePath != "" {
		cfg.CookieStore = storePath
	}

	resolver, err := cfg.Resolver(log)
	if err != nil {
		return err
	}

	store := browser.NewCookieStore(cfg.CookieStore, cfg.CookieMaxAge)
	driver := browser.NewDriver(cfg.BrowserOptions(visible), resolver, store, log)
	if err := driver.Start(); err != nil {
		return err
	}
	defer driver.Close()

	if err := driver.Login(); err != nil {
		return err
	}

	groupURL := driver.GroupURL(args[0])
	topics, err := driver.Topics(args[0], maxTopics)
	if err != nil {
		return err
	}
	if err := scrape.RequireTopics(groupURL, topics); err != nil {
		log.Warn("No topics found", zap.String("group", groupURL))
		return err
	}

	record := model.GroupScrape{GroupURL: groupURL, Threads: topics}
	if withContent {
		record.ThreadContents = threadContents(driver, topics, cfg.Delay, log)
	}

	if outputPath == "" {
		return present.Show(present.Topics(topics))
	}
	if err := output.WriteJSON(outputPath, record); err != nil {
		return err
	}
	log.Info("Results saved", zap.String("path", outputPath))
	return nil
}

func threadContents(driver *browser.Driver, topics []model.Topic, delay time.Duration, log *zap.Logger) []model.Thread {
	if maxThreads > 0 && len(topics) > maxThreads {
		topics = topics[:maxThreads]
	}

	threads := make([]model.Thread, 0, len(topics))
	for i, topic := range topics {
		if i > 0 && delay > 0 {
			time.Sleep(delay)
		}
		thread, err := driver.Thread(topic.URL)
		if err != nil {
			log.Error("Failed to load thread", zap.String("url", topic.URL), zap.Error(err))
			continue
		}
		threads = append(threads, *thread)
	}
	log.Info("Extracted thread contents", zap.Int("count", len(threads)))
	return threads
}
