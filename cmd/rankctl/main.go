// Command rankctl runs the offline link-analysis jobs and evaluation tools.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/cmd/rankctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
