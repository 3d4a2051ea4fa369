// Command gateway serves the public HTTP API: accounts, trade placement and
// closing, history, and balances.
package main

import (
	"os"

	"github.com/alanyoungcy/tradecore/internal/app"
)

func main() {
	os.Exit(app.RunMain("gateway"))
}
