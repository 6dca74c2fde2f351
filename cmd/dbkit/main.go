// Command dbkit runs the users database exercises: seeding, streaming,
// paginating, transactional updates, cached queries and the GitHub
// organization client.
package main

import (
	"fmt"
	"os"

	"github.com/deppfellow/go-dbkit/internal/sqlerr"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", sqlerr.Describe(err))
		os.Exit(1)
	}
}
