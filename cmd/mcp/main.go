// Команда telegram-mcp запускает MCP-сервер Telegram поверх stdio.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
