// Command tradecore is the engine entry point. It runs the mode named in the
// configuration file, which defaults to the matching engine; "full" runs
// every component in one process for development.
package main

import (
	"os"

	"github.com/alanyoungcy/tradecore/internal/app"
)

func main() {
	os.Exit(app.RunMain(""))
}
