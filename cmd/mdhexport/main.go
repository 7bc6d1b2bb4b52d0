// Mdhexport exports MyDataHelps study data from Amazon Athena to CSV and Parquet files.
package main

import (
	"fmt"
	"os"

	"github.com/nextgensh/mdh-export/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
