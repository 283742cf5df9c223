// Command migrate-gen generates SQL migration files for the stream documents table.
//
// Usage:
//
//	go run github.com/getpup/pupstream/cmd/migrate-gen -output migrations -filename init.sql
//
// Or with go generate:
//
//	//go:generate go run github.com/getpup/pupstream/cmd/migrate-gen -output migrations
//
// Generate migrations for different database adapters:
//
//	go run github.com/getpup/pupstream/cmd/migrate-gen -adapter postgres -output migrations
//	go run github.com/getpup/pupstream/cmd/migrate-gen -adapter mysql -output migrations
//	go run github.com/getpup/pupstream/cmd/migrate-gen -adapter sqlite -output migrations
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/getpup/pupstream/es/migrations"
)

func main() {
	var (
		adapter        = flag.String("adapter", "postgres", "Database adapter: postgres, mysql, or sqlite")
		outputFolder   = flag.String("output", "migrations", "Output folder for migration file")
		outputFilename = flag.String("filename", "", "Output filename (default: timestamp-based)")
		documentsTable = flag.String("documents-table", "stream_documents", "Name of the stream documents table")
	)

	flag.Parse()

	config := migrations.DefaultConfig()
	config.OutputFolder = *outputFolder
	config.DocumentsTable = *documentsTable

	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}

	dialect := migrations.Dialect(*adapter)
	switch dialect {
	case migrations.Postgres, migrations.MySQL, migrations.SQLite:
	default:
		fmt.Fprintf(os.Stderr, "Error: unsupported adapter '%s'. Supported adapters are: postgres, mysql, sqlite\n", *adapter)
		os.Exit(1)
	}

	if err := migrations.Generate(dialect, &config); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s migration: %s/%s\n", *adapter, config.OutputFolder, config.OutputFilename)
}
