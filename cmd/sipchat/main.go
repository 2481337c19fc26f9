// Command sipchat is an interactive console client for chat and audio
// sessions.
package main

import (
	"os"

	"github.com/Iron-Ham/sipchat/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
