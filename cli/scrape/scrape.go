package scrape

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/zvonler/threadgrab/configuration"
	"github.com/zvonler/threadgrab/fetch"
	"github.com/zvonler/threadgrab/model"
	"github.com/zvonler/threadgrab/output"
	"github.com/zvonler/threadgrab/present"
	"github.com/zvonler/threadgrab/scraper"
	"github.com/zvonler/threadgrab/selector"
	"github.com/zvonler/threadgrab/utils"
	"go.uber.org/zap"
)

var (
	maxPages    int
	maxThreads  int
	withContent bool
	cookiesPath string
	outputPath  string
	delay       float64
)

func NewCommand() *cobra.Command {
	scrapeCommand := &cobra.Command{
		Use:   "scrape <group-URL>",
		Short: "Lists the threads of a group, optionally with their content",
		Args:  cobra.ExactArgs(1),
		Example: "" +
			"  " + os.Args[0] + " scrape https://groups.google.com/g/golang-nuts --pages 2 --content --threads 5",
		RunE: runScrapeCommand,
	}

	scrapeCommand.Flags().IntVar(&maxPages, "pages", 3, "Maximum number of listing pages")
	scrapeCommand.Flags().IntVar(&maxThreads, "threads", 0, "Maximum number of threads to extract content from (0 for all)")
	scrapeCommand.Flags().BoolVar(&withContent, "content", false, "Extract thread contents in addition to the listing")
	scrapeCommand.Flags().StringVar(&cookiesPath, "cookies", "", "JSON file with authentication cookies")
	scrapeCommand.Flags().StringVar(&outputPath, "output", "", "JSON file for the results (prints when empty)")
	scrapeCommand.Flags().Float64Var(&delay, "delay", 0, "Seconds to wait between thread fetches (default from delay setting)")

	return scrapeCommand
}

// SeedURL validates a group URL given on the command line.
func SeedURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || !utils.HasHTTPScheme(raw) || u.Host == "" {
		return nil, fmt.Errorf("%w: bad URL %q", model.ErrInput, raw)
	}
	return u, nil
}

// RequireTopics rejects a listing without topics, which the listing
// commands treat as an input error.
func RequireTopics(groupURL string, topics []model.Topic) error {
	if len(topics) == 0 {
		return fmt.Errorf("%w: no threads found in %s", model.ErrInput, groupURL)
	}
	return nil
}

// WalkGroup follows the listing pages of groupURL.
func WalkGroup(cfg configuration.Config, groupURL string, pages int, log *zap.Logger) (scraper.WalkResult, *fetch.Engine, *selector.Resolver, error) {
	var result scraper.WalkResult
	if _, err := SeedURL(groupURL); err != nil {
		return result, nil, nil, err
	}

	resolver, err := cfg.Resolver(log)
	if err != nil {
		return result, nil, nil, err
	}
	engine, _, err := cfg.NewEngine(groupURL, log)
	if err != nil {
		return result, nil, nil, err
	}

	walker := scraper.NewWalker(engine, scraper.NewListExtractor(resolver, cfg.Separator, log), pages, cfg.PageDelay, log)
	result = walker.Walk(groupURL)
	if result.Err != nil {
		log.Warn("Listing incomplete", zap.Int("topics", len(result.Topics)), zap.Error(result.Err))
	}
	return result, engine, resolver, nil
}

func runScrapeCommand(cmd *cobra.Command, args []string) error {
	cfg, log, err := configuration.Setup()
	if err != nil {
		return err
	}
	defer log.Sync()
	if cookiesPath != "" {
		cfg.Cookies = cookiesPath
	}
	if cmd.Flags().Changed("delay") {
		cfg.Delay = utils.Seconds(delay)
	}

	groupURL := args[0]
	result, engine, resolver, err := WalkGroup(cfg, groupURL, maxPages, log)
	if err != nil {
		return err
	}
	if err := RequireTopics(groupURL, result.Topics); err != nil {
		log.Warn("No threads were found. The page structure might have changed or the group might be private.")
		return err
	}
	log.Info("Found threads in total", zap.Int("count", len(result.Topics)))

	record := model.GroupScrape{GroupURL: groupURL, Threads: result.Topics}
	if withContent {
		record.ThreadContents = extractContents(cfg, engine, resolver, result.Topics, log)
		log.Info("Extracted thread contents", zap.Int("count", len(record.ThreadContents)))
	}

	if outputPath == "" {
		return present.Show(present.Topics(record.Threads))
	}
	if err := output.WriteJSON(outputPath, record); err != nil {
		log.Error("Failed to save results", zap.Error(err))
		return nil
	}
	log.Info("Results saved", zap.String("path", outputPath))
	return nil
}

func extractContents(cfg configuration.Config, engine *fetch.Engine, resolver *selector.Resolver, topics []model.Topic, log *zap.Logger) []model.Thread {
	if maxThreads > 0 && len(topics) > maxThreads {
		topics = topics[:maxThreads]
	}

	extractor := scraper.NewThreadExtractor(engine, resolver, nil, log)
	threads := make([]model.Thread, 0, len(topics))
	for i, topic := range topics {
		log.Info("Extracting thread",
			zap.Int("index", i+1),
			zap.Int("of", len(topics)),
			zap.String("title", topic.Title))
		if thread := extractor.Extract(topic.URL); thread != nil {
			threads = append(threads, *thread)
		}
		if i < len(topics)-1 && cfg.Delay > 0 {
			time.Sleep(cfg.Delay)
		}
	}
	return threads
}
