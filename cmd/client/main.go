package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/lantern/internal/buildinfo"
	"github.com/dmitrijs2005/lantern/internal/client"
	"github.com/dmitrijs2005/lantern/internal/client/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := client.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}

}
