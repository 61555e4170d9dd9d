package archive

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/zvonler/threadgrab/configuration"
	"github.com/zvonler/threadgrab/database"
)

var (
	dbPath string
)

func NewCommand() *cobra.Command {
	archiveCommand := &cobra.Command{
		Use:   "archive",
		Short: "Commands for browsing threads archived by batch --database",
		Example: "  # Finds archived posts mentioning both goroutine and leak\n" +
			"  " + os.Args[0] + " archive grep goroutine leak",
	}

	archiveCommand.PersistentFlags().StringVar(&dbPath, "database", "threadgrab.db", "Database filename")

	archiveCommand.AddCommand(initAuthorsCommand())
	archiveCommand.AddCommand(initGroupsCommand())
	archiveCommand.AddCommand(initListCommand())
	archiveCommand.AddCommand(initGrepCommand())
	archiveCommand.AddCommand(initOpenCommand())
	archiveCommand.AddCommand(initShowCommand())
	archiveCommand.AddCommand(initWordcloudCommand())

	return archiveCommand
}

// openArchive opens the database named by --database, or by the database
// setting when the flag was not given.
func openArchive(cmd *cobra.Command) (*database.ScraperDB, error) {
	path := dbPath
	if !cmd.Flags().Changed("database") {
		if configured := configuration.Load().Database; configured != "" {
			path = configured
		}
	}
	return configuration.OpenExistingDatabase(path)
}
