package archive

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zvonler/threadgrab/present"
)

func initAuthorsCommand() *cobra.Command {
	authorsCommand := &cobra.Command{
		Use:   "authors [regex...]",
		Short: "Lists archived authors, optionally those matching regular expression(s)",
		RunE:  runAuthorsCommand,
	}
	return authorsCommand
}

func runAuthorsCommand(cmd *cobra.Command, args []string) error {
	sdb, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer sdb.Close()

	rows, err := sdb.Authors(args)
	if err != nil {
		return err
	}
	fmt.Println(present.AuthorTable(rows))
	return nil
}
