package main

import (
	"notebot/cmd/cli"

	// database/sql drivers for the call record repository
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	cli.Execute()
}
