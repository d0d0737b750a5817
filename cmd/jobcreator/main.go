// Command jobcreator runs the Job Creator (C4): it reads its own YAML
// configuration, binds its inbox, and validates, resolves, and fans out
// every job document submitted to it until signalled to stop (spec.md §6).
package main

import (
	"fmt"
	"os"

	"oss.mash.dev/mash/cli"
	"oss.mash.dev/mash/cmd/internal/boot"
	"oss.mash.dev/mash/jobcreator"
	"oss.mash.dev/mash/lifecycle"
)

// config is the job creator's own YAML configuration file.
type config struct {
	NATSURL        string `yaml:"nats_url"`
	AccountsConfig string `yaml:"accounts_config"`
}

func main() {
	app := cli.NewCLI()
	app.AddVersion("1.0.0")

	cmd := cli.NewCommand("jobcreator", "Run the job creator service", "1.0.0", run)
	cmd.Flags = []*cli.Flag{
		{Name: "config", Usage: "path to YAML configuration file", Aliases: []string{"c"}, Default: "jobcreator.yaml"},
	}
	app.AddCommand(cmd)

	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "jobcreator: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	path, _ := ctx.GetFlag("config")
	var cfg config
	if err := boot.LoadYAML(path, &cfg); err != nil {
		return err
	}

	accounts, err := jobcreator.LoadAccountsConfig(cfg.AccountsConfig)
	if err != nil {
		return err
	}

	manager, scheme, err := boot.Messaging(cfg.NATSURL)
	if err != nil {
		return err
	}

	svc := jobcreator.New(manager, scheme, accounts)

	comps := lifecycle.NewSimpleComponentManager()
	comps.Register(&lifecycle.SimpleComponent{
		CompId:    "jobcreator",
		StartFunc: svc.Start,
		StopFunc:  func() error { return nil },
	})
	if err := comps.StartAll(); err != nil {
		return err
	}
	comps.Wait()
	return nil
}
