package main

import (
	"flag"
	"log"

	"github.com/danmuck/tether/internal/config"
)

func main() {
	kind := flag.String("kind", "client", "config kind: client|relay")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing relay config file")
	input := flag.String("input", "", "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			log.Fatal("validate requires -input")
		}
		if _, err := config.LoadRelayConfig(path); err != nil {
			log.Fatal(err)
		}
		log.Printf("config ok: %s", path)
		return
	}

	if *output == "" {
		template, err := config.Template(*kind)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("template for %s:\n%s", *kind, template)
		return
	}

	if err := config.WriteTemplate(*output, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %s config template: %s", *kind, *output)
}
