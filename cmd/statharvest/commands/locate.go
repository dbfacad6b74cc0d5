package commands

import (
	"fmt"

	"statharvest/internal/harvest"
	"statharvest/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var locateCmd = &cobra.Command{
	Use:   "locate [table-group]",
	Short: "Find the path of a table group below the root.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		group := env.cfg.TableId
		if len(args) > 0 {
			group = args[0]
		}

		locator := harvest.NewLocator(mustClient(), env.tel)
		path, err := locator.Locate(cmd.Context(), env.cfg.RootPath(), group)
		if err != nil {
			serviceutil.Fatal("failed to locate table group", err)
		}
		fmt.Println(path.String())
	},
}

func init() {
	rootCmd.AddCommand(locateCmd)
}
