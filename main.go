package main

import (
	"os"

	"github.com/BioHazard786/warpcall/cmd"
	"github.com/BioHazard786/warpcall/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	code := cmd.Execute()
	logging.Sync()
	os.Exit(code)
}
