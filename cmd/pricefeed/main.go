// Command pricefeed ingests Binance trades, publishes scaled quotes to the
// symbol channels, and appends quote updates to the engine stream.
package main

import (
	"os"

	"github.com/alanyoungcy/tradecore/internal/app"
)

func main() {
	os.Exit(app.RunMain("pricefeed"))
}
