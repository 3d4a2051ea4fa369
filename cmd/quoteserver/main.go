// Command quoteserver fans live quotes out to websocket subscribers.
package main

import (
	"os"

	"github.com/alanyoungcy/tradecore/internal/app"
)

func main() {
	os.Exit(app.RunMain("quoteserver"))
}
