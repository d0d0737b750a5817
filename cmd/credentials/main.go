// Command credentials runs the Credentials Courier (C7): the only process
// that opens the backing secrets store, answering account lifecycle and
// credentials-lookup messages for every other stage (spec.md §6, §4.7).
package main

import (
	"fmt"
	"os"

	"oss.mash.dev/mash/cli"
	"oss.mash.dev/mash/cmd/internal/boot"
	"oss.mash.dev/mash/credentials"
	"oss.mash.dev/mash/lifecycle"
	"oss.mash.dev/mash/secrets"
)

// config is the credentials service's own YAML configuration file.
type config struct {
	NATSURL   string `yaml:"nats_url"`
	StoreFile string `yaml:"store_file"`
	MasterKey string `yaml:"master_key"`
}

func main() {
	app := cli.NewCLI()
	app.AddVersion("1.0.0")

	cmd := cli.NewCommand("credentials", "Run the credentials courier service", "1.0.0", run)
	cmd.Flags = []*cli.Flag{
		{Name: "config", Usage: "path to YAML configuration file", Aliases: []string{"c"}, Default: "credentials.yaml"},
	}
	app.AddCommand(cmd)

	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "credentials: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	path, _ := ctx.GetFlag("config")
	var cfg config
	if err := boot.LoadYAML(path, &cfg); err != nil {
		return err
	}
	if cfg.MasterKey == "" {
		return fmt.Errorf("credentials: master_key is required")
	}

	store, err := secrets.NewLocalStore(cfg.StoreFile, cfg.MasterKey)
	if err != nil {
		return fmt.Errorf("credentials: open store %s: %w", cfg.StoreFile, err)
	}
	stores := &secrets.Manager{}
	stores.Register(store)

	manager, scheme, err := boot.Messaging(cfg.NATSURL)
	if err != nil {
		return err
	}

	svc := credentials.New(manager, scheme, stores)

	comps := lifecycle.NewSimpleComponentManager()
	comps.Register(&lifecycle.SimpleComponent{
		CompId:    "credentials",
		StartFunc: svc.Start,
		StopFunc:  func() error { return nil },
	})
	if err := comps.StartAll(); err != nil {
		return err
	}
	comps.Wait()
	return nil
}
