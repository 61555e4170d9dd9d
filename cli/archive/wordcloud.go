package archive

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/zvonler/threadgrab/configuration"
	"github.com/zvonler/threadgrab/model"
	"github.com/zvonler/threadgrab/wordcloud"
	"go.uber.org/zap"
)

var (
	cloudConfig string
	cloudOutput string
	maxWords    int
)

func initWordcloudCommand() *cobra.Command {
	wordcloudCommand := &cobra.Command{
		Use:   "wordcloud <thread-URL>...",
		Short: "Creates a word cloud from the posts of archived threads",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runWordcloudCommand,
	}

	wordcloudCommand.Flags().StringVar(&cloudConfig, "cloud-config", "", "YAML file with rendering settings")
	wordcloudCommand.Flags().StringVar(&cloudOutput, "output", "output.png", "Path to output image")
	wordcloudCommand.Flags().IntVar(&maxWords, "words", 200, "Maximum number of words")

	return wordcloudCommand
}

func runWordcloudCommand(cmd *cobra.Command, args []string) error {
	_, log, err := configuration.Setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	conf := wordcloud.DefaultConf
	if cloudConfig != "" {
		if conf, err = wordcloud.LoadConf(cloudConfig); err != nil {
			return err
		}
	}

	sdb, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer sdb.Close()

	threads := make([]model.Thread, 0, len(args))
	for _, threadURL := range args {
		thread, err := sdb.Thread(threadURL)
		if err != nil {
			return err
		}
		threads = append(threads, thread)
	}

	words := wordcloud.Count(threads, maxWords)
	log.Info("Counted words", zap.Int("distinct", len(words)))

	start := time.Now()
	if err := wordcloud.Render(words, conf, cloudOutput); err != nil {
		return err
	}
	log.Info("Word cloud saved", zap.String("path", cloudOutput), zap.Duration("elapsed", time.Since(start)))
	return nil
}
