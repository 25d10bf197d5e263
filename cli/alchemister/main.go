package main

import (
	"os"

	alchemistercmder "github.com/hallucinationguys/alchemister/cmd/alchemister"
)

func main() {
	cmd := alchemistercmder.NewAlchemisterCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
