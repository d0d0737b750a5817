// Command publish runs the publisher stage: it admits publisher_job
// documents through C5's generic Listener Service Framework (spec.md §6,
// §4.6). Its JobFactory is empty, so every admitted job runs stagejob.NoOp,
// which forwards the prior stage's image name and regions unchanged.
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

	cmd := cli.NewCommand("publish", "Run the publisher stage", "1.0.0", run)
	cmd.Flags = []*cli.Flag{
		{Name: "config", Usage: "path to YAML configuration file", Aliases: []string{"c"}, Default: "publish.yaml"},
	}
	app.AddCommand(cmd)

	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "publish: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	path, _ := ctx.GetFlag("config")
	return boot.RunStage(pipeline.StagePublish, path, listener.JobFactory{})
}
