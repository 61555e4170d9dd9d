package archive

import (
	"github.com/spf13/cobra"
	"github.com/zvonler/threadgrab/present"
)

func initGrepCommand() *cobra.Command {
	grepCommand := &cobra.Command{
		Use:   "grep <regex>...",
		Short: "Locates archived posts matching every regular expression",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runGrepCommand,
	}
	return grepCommand
}

func runGrepCommand(cmd *cobra.Command, args []string) error {
	sdb, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer sdb.Close()

	matches, err := sdb.SearchPosts(args)
	if err != nil {
		return err
	}
	return present.Show(present.Matches(matches))
}
