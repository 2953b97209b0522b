package main

import (
	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/zgstorage/zgs-client/indexer"
	"github.com/zgstorage/zgs-client/merkle"
	"github.com/zgstorage/zgs-client/node"
	"github.com/zgstorage/zgs-client/transfer"
)

var downloadCmd = &cli.Command{
	Name:      "download",
	Usage:     "Download a file from the storage network by its root hash",
	ArgsUsage: "<root>",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "node",
			Usage: "storage node RPC endpoint, repeatable",
		},
		&cli.StringFlag{
			Name:  "indexer",
			Usage: "indexer RPC endpoint, used to locate storage nodes when --node is not given",
		},
		&cli.StringFlag{
			Name:     "output",
			Aliases:  []string{"o"},
			Usage:    "path to write the downloaded file to, must not exist",
			Required: true,
		},
		&cli.BoolFlag{
			Name:  "proof",
			Usage: "validate a merkle proof for every downloaded segment",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.New("expected exactly one root hash argument")
		}

		root, err := merkle.HexToHash(cctx.Args().First())
		if err != nil {
			return xerrors.Errorf("parsing root hash: %w", err)
		}

		output, err := homedir.Expand(cctx.String("output"))
		if err != nil {
			return xerrors.Errorf("expanding output path: %w", err)
		}

		ctx := cctx.Context
		withProof := cctx.Bool("proof")

		if indexerURL := cctx.String("indexer"); indexerURL != "" {
			client, err := indexer.NewClient(ctx, indexerURL)
			if err != nil {
				return err
			}
			defer client.Close()

			return client.Download(ctx, root, output, withProof)
		}

		urls := cctx.StringSlice("node")
		if len(urls) == 0 {
			return xerrors.New("either --node or --indexer is required")
		}

		clients, err := node.NewZgsClients(ctx, urls)
		if err != nil {
			return err
		}

		downloader, err := transfer.NewDownloader(clients)
		if err != nil {
			for _, client := range clients {
				client.Close()
			}
			return err
		}
		defer downloader.Close()

		return downloader.Download(ctx, root, output, withProof)
	},
}
