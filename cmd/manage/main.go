// Command manage administers users, grants and the database schema.
package main

import (
	"os"
)

func main() {
	if err := NewRootCmd(openDeps).Execute(); err != nil {
		os.Exit(1)
	}
}
