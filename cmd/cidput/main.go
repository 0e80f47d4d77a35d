package main

import (
	"context"
	"fmt"
	"os"

	"github.com/passagehq/passage/internal/content/sqlite"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run cmd/cidput/main.go <store.db> <file> [file ...]")
		fmt.Println("Ingests files into a SQLite content store and prints their CIDs")
		os.Exit(1)
	}

	store, err := sqlite.New(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	for _, path := range os.Args[2:] {
		blob, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
			os.Exit(1)
		}
		cid, err := store.Put(context.Background(), blob)
		if err != nil {
			fmt.Fprintf(os.Stderr, "put %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("%s  %s\n", cid, path)
	}
}
