package archive

import (
	"github.com/spf13/cobra"
	"github.com/zvonler/threadgrab/present"
)

func initShowCommand() *cobra.Command {
	showCommand := &cobra.Command{
		Use:   "show <thread-URL>",
		Short: "Formats an archived thread for human consumption",
		Args:  cobra.ExactArgs(1),
		RunE:  runShowCommand,
	}
	return showCommand
}

func runShowCommand(cmd *cobra.Command, args []string) error {
	sdb, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer sdb.Close()

	thread, err := sdb.Thread(args[0])
	if err != nil {
		return err
	}
	return present.Show(present.Thread(thread))
}
