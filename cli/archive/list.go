package archive

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zvonler/threadgrab/present"
)

func initListCommand() *cobra.Command {
	listCommand := &cobra.Command{
		Use:   "list [group-URL]",
		Short: "Lists archived threads, optionally of one group",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runListCommand,
	}
	return listCommand
}

func runListCommand(cmd *cobra.Command, args []string) error {
	sdb, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer sdb.Close()

	var groupURL string
	if len(args) > 0 {
		groupURL = args[0]
	}

	rows, err := sdb.Threads(groupURL)
	if err != nil {
		return err
	}
	fmt.Println(present.ThreadTable(rows))
	return nil
}
