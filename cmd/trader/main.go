// Command trader runs the intraday options auto-trader.
package main

import (
	"context"
	"fmt"
	"os"

	"options-autotrader/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
