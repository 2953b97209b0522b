package main

import (
	"fmt"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"

	"github.com/zgstorage/zgs-client/build"
	"github.com/zgstorage/zgs-client/lib/zgslog"
)

var log = logging.Logger("main")

func main() {
	zgslog.SetupLogLevels()

	app := &cli.App{
		Name:    "zgs-client",
		Usage:   "Client for the 0G decentralized storage network",
		Version: build.UserVersion(),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Before: func(cctx *cli.Context) error {
			if cctx.Bool("verbose") {
				logging.SetAllLoggers(logging.LevelDebug)
			}
			return nil
		},
		Commands: []*cli.Command{
			uploadCmd,
			downloadCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n\n", err)
		os.Exit(1)
	}
}
