package main

import (
	"statharvest/cmd/statharvest/commands"
	"statharvest/lib/util/serviceutil"
)

func main() {
	ctx, stop := serviceutil.SignalContext()
	defer stop()
	commands.ExecuteContext(ctx)
}
