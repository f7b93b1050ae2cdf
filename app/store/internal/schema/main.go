package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"tasklist/app/store"
)

func main() {
	// generate schema for the seed file format
	schema := store.SeedSchema()

	// set schema metadata
	schema.Title = "Tasklist Seed File Schema"
	schema.Description = "Schema for the tasklist YAML seed file"
	schema.Version = "1.0.0"

	// marshal to JSON with indentation
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal schema: %v", err)
	}

	// write to file
	outputPath := "schema.json"
	if len(os.Args) > 1 {
		outputPath = os.Args[1]
	}

	if err := os.WriteFile(outputPath, data, 0o600); err != nil { //nolint:gosec // schema file is not sensitive
		log.Fatalf("failed to write schema file: %v", err)
	}

	fmt.Printf("Schema generated successfully at %s\n", outputPath)
}
