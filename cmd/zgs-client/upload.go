package main

import (
	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/zgstorage/zgs-client/file"
	"github.com/zgstorage/zgs-client/indexer"
	"github.com/zgstorage/zgs-client/node"
	"github.com/zgstorage/zgs-client/transfer"
)

var uploadCmd = &cli.Command{
	Name:      "upload",
	Usage:     "Upload a file to the storage network",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "node",
			Usage: "storage node RPC endpoint, repeatable",
		},
		&cli.StringFlag{
			Name:  "indexer",
			Usage: "indexer RPC endpoint, used to select storage nodes when --node is not given",
		},
		&cli.Uint64Flag{
			Name:  "expected-replica",
			Usage: "replication factor the selected node set must satisfy",
			Value: 1,
		},
		&cli.Uint64Flag{
			Name:  "task-size",
			Usage: "segments per upload task",
			Value: 10,
		},
		&cli.BoolFlag{
			Name:  "skip-tx",
			Usage: "skip the flow transaction, the file must already be committed on-chain",
		},
		&cli.BoolFlag{
			Name:  "no-finality",
			Usage: "return as soon as segments are transferred, without waiting for finality",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.New("expected exactly one file argument")
		}

		path, err := homedir.Expand(cctx.Args().First())
		if err != nil {
			return xerrors.Errorf("expanding path: %w", err)
		}

		f, err := file.Open(path)
		if err != nil {
			return xerrors.Errorf("opening %s: %w", path, err)
		}
		defer f.Close() //nolint:errcheck

		opt := transfer.DefaultUploadOption()
		opt.TaskSize = cctx.Uint64("task-size")
		opt.ExpectedReplica = cctx.Uint64("expected-replica")
		opt.SkipTx = cctx.Bool("skip-tx")
		opt.FinalityRequired = !cctx.Bool("no-finality")

		// Transaction signing is not built in, so an upload can only proceed
		// against files already committed to the flow log.
		if !opt.SkipTx {
			return xerrors.New("no flow submitter available, pass --skip-tx to upload an already-committed file")
		}

		ctx := cctx.Context

		if indexerURL := cctx.String("indexer"); indexerURL != "" {
			client, err := indexer.NewClient(ctx, indexerURL)
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := client.Upload(ctx, f, nil, opt)
			if err != nil {
				return err
			}
			log.Infow("upload finished", "root", result.RootHash)
			return nil
		}

		urls := cctx.StringSlice("node")
		if len(urls) == 0 {
			return xerrors.New("either --node or --indexer is required")
		}

		clients, err := node.NewZgsClients(ctx, urls)
		if err != nil {
			return err
		}

		uploader, err := transfer.NewUploader(nil, clients)
		if err != nil {
			for _, client := range clients {
				client.Close()
			}
			return err
		}
		defer uploader.Close()

		result, err := uploader.Upload(ctx, f, opt)
		if err != nil {
			return err
		}
		log.Infow("upload finished", "root", result.RootHash)
		return nil
	},
}
