package main

import (
	"os"

	thinkgatecmder "github.com/papercomputeco/thinkgate/cmd/thinkgate"
)

func main() {
	cmd := thinkgatecmder.NewThinkgateCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
