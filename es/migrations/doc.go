// Package migrations provides SQL migration generation for the SQL adapters.
//
// To generate migrations, use the migrate-gen command:
//
//	go run github.com/getpup/pupstream/cmd/migrate-gen -adapter postgres -output migrations
//
// Or add a go generate directive to your code:
//
//	//go:generate go run github.com/getpup/pupstream/cmd/migrate-gen -output ../../migrations
//
// Then run:
//
//	go generate ./...
package migrations
