// Command cloudbill loads catalogs and usage, generates invoices and serves
// the billing HTTP API.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
