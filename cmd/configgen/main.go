package main

import (
	"flag"
	"log"

	"github.com/danmuck/fixgate/internal/config"
)

func main() {
	kind := flag.String("kind", "acceptor", "config kind: acceptor|initiator")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	role := config.Role(*kind)
	if role != config.RoleAcceptor && role != config.RoleInitiator {
		log.Fatalf("unknown kind: %s", *kind)
	}
	defaultPath := "cmd/fix" + *kind + "/config.toml"

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath
		}
		cfg, err := config.Load(path, role)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s (%d sessions, store %s)", *kind, path, len(cfg.Sessions), cfg.StoreDSN)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
