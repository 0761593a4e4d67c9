// Command catalogschema writes the JSON schema for catalog files.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/dimaspandu/pokecat-hunt/internal/catalog"
)

func main() {
	out := flag.String("out", "", "write the schema to this path instead of stdout")
	flag.Parse()

	schema, err := catalog.BuildSchema()
	if err != nil {
		log.Fatalf("build schema: %v", err)
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Fatalf("encode schema: %v", err)
	}
	data = append(data, '\n')

	if *out == "" {
		os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		log.Fatalf("write %s: %v", *out, err)
	}
}
