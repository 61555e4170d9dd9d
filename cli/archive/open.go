package archive

import (
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
)

func initOpenCommand() *cobra.Command {
	openCommand := &cobra.Command{
		Use:   "open <thread-URL>",
		Short: "Opens an archived thread in a browser",
		Args:  cobra.ExactArgs(1),
		RunE:  runOpenCommand,
	}
	return openCommand
}

func runOpenCommand(cmd *cobra.Command, args []string) error {
	sdb, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer sdb.Close()

	thread, err := sdb.Thread(args[0])
	if err != nil {
		return err
	}
	return browser.OpenURL(thread.URL)
}
