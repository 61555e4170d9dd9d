package batch

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zvonler/threadgrab/batch"
	"github.com/zvonler/threadgrab/configuration"
	"github.com/zvonler/threadgrab/database"
	"github.com/zvonler/threadgrab/model"
	"github.com/zvonler/threadgrab/output"
	"github.com/zvonler/threadgrab/present"
	"github.com/zvonler/threadgrab/utils"
	"go.uber.org/zap"
)

var (
	cookiesPath string
	outputDir   string
	delay       float64
	summary     bool
	dbPath      string
)

func NewCommand() *cobra.Command {
	batchCommand := &cobra.Command{
		Use:   "batch <URL-list-file>",
		Short: "Extracts every thread named in a file of URLs",
		Args:  cobra.ExactArgs(1),
		Example: "" +
			"  " + os.Args[0] + " batch urls.txt --output threads --summary\n" +
			"  " + os.Args[0] + " batch urls.txt --database threadgrab.db",
		RunE: runBatchCommand,
	}

	batchCommand.Flags().StringVar(&cookiesPath, "cookies", "", "JSON file with authentication cookies")
	batchCommand.Flags().StringVar(&outputDir, "output", "threads", "Directory for the per-thread JSON files")
	batchCommand.Flags().Float64Var(&delay, "delay", batch.DefaultDelay.Seconds(), "Seconds to wait between threads of a group")
	batchCommand.Flags().BoolVar(&summary, "summary", false, "Also write summary.json to the output directory")
	batchCommand.Flags().StringVar(&dbPath, "database", "", "Also archive threads in this SQLite database")

	return batchCommand
}

func runBatchCommand(cmd *cobra.Command, args []string) error {
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
	if dbPath != "" {
		cfg.Database = dbPath
	}

	urls, err := batch.ReadURLList(args[0], log)
	if err != nil {
		return err
	}

	opts, err := cfg.BatchOptions()
	if err != nil {
		return err
	}
	opts.Summary = summary

	resolver, err := cfg.Resolver(log)
	if err != nil {
		return err
	}

	dir, err := output.NewJSONDir(outputDir, cfg.Separator, log)
	if err != nil {
		return err
	}
	var sink output.Sink = dir
	if cfg.Database != "" {
		sdb, err := database.OpenScraperDB(cfg.Database)
		if err != nil {
			return err
		}
		defer sdb.Close()
		sink = output.Multi{dir, sdb}
	}

	report, err := batch.NewOrchestrator(opts, resolver, sink, log).Run(urls)
	if err != nil {
		return err
	}
	fmt.Println(present.ReportTable(report))

	if report.Summary != nil {
		if err := output.WriteJSON(dir.SummaryPath(), report.Summary); err != nil {
			return err
		}
		log.Info("Summary saved", zap.String("path", dir.SummaryPath()))
	}

	if !report.Succeeded() {
		return fmt.Errorf("%w: no thread was extracted from %d URLs", model.ErrTransientFetch, len(urls))
	}
	return nil
}
