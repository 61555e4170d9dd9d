package archive

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zvonler/threadgrab/present"
)

func initGroupsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "Lists archived groups",
		Args:  cobra.NoArgs,
		RunE:  runGroupsCommand,
	}
}

func runGroupsCommand(cmd *cobra.Command, args []string) error {
	sdb, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer sdb.Close()

	rows, err := sdb.Groups()
	if err != nil {
		return err
	}
	fmt.Println(present.GroupTable(rows))
	return nil
}
