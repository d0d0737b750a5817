// Command obs runs the obs stage behind C5's generic Listener Service
// Framework: it admits obs_job documents (spec.md §6, §4.3). Its JobFactory
// is empty, so every admitted job runs stagejob.NoOp; this binary does not
// wire in the obswatcher package and does not poll any build output.
package main

import (
	"fmt"
	"os"

	"oss.mash.dev/mash/cli"
	"oss.mash.dev/mash/cmd/internal/boot"
	"oss.mash.dev/mash/listener"
	"oss.mash.dev/mash/pipeline"
)

func main() {
	app := cli.NewCLI()
	app.AddVersion("1.0.0")

	cmd := cli.NewCommand("obs", "Run the build-result watcher stage", "1.0.0", run)
	cmd.Flags = []*cli.Flag{
		{Name: "config", Usage: "path to YAML configuration file", Aliases: []string{"c"}, Default: "obs.yaml"},
	}
	app.AddCommand(cmd)

	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "obs: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	path, _ := ctx.GetFlag("config")
	return boot.RunStage(pipeline.StageOBS, path, listener.JobFactory{})
}
