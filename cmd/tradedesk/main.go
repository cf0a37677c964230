package main

import (
	"os"

	"tradedesk/internal/app"
)

func main() {
	os.Exit(app.NewRunner().Run(os.Args[1:]))
}
