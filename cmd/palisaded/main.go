// Command palisaded runs the game backend's packet protocol server: it
// loads configuration, opens the credentials database, and serves
// connections until interrupted.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/duskforge/palisade/pkg/database"
	"github.com/duskforge/palisade/pkg/server"
)

func main() {
	configPath := flag.String("config", "~/.palisade/config.toml", "path to the TOML configuration file")
	flag.Parse()

	tomlConfig, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbPath, err := tomlConfig.GetDatabasePath()
	if err != nil {
		log.Fatalf("resolve database path: %v", err)
	}

	repo, err := database.OpenSQLite(dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer repo.Close()

	srv := server.New(tomlConfig.ToServerConfig(), repo)
	if err := srv.Start(); err != nil {
		log.Fatalf("start server: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down")
	if err := srv.Stop(); err != nil {
		log.Fatalf("stop server: %v", err)
	}
}
