package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ruteri/script-provisioning-agent/cmd/flags"
	"github.com/ruteri/script-provisioning-agent/interfaces"
	"github.com/ruteri/script-provisioning-agent/storage"
	"github.com/urfave/cli/v2"
)

var credentialFlags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:     "account-name",
		Required: true,
		Usage:    "storage account name",
		EnvVars:  []string{"STORAGE_ACCOUNT_NAME"},
	},
	&cli.StringFlag{
		Name:     "account-key",
		Required: true,
		Usage:    "base64 storage account key",
		EnvVars:  []string{"STORAGE_ACCOUNT_KEY"},
	},
}

var blobctlCommand = &cli.Command{
	Name:  "blobctl",
	Usage: "upload or download a single blob with a SharedKeyLite signed request",
	Subcommands: []*cli.Command{
		{
			Name:      "upload",
			Usage:     "upload a local file as a block blob",
			ArgsUsage: "<blob path> <file>",
			Flags:     credentialFlags,
			Action: func(cCtx *cli.Context) error {
				if cCtx.NArg() != 2 {
					return errors.New("expected <blob path> <file>")
				}
				client, cred := blobClient(cCtx)
				return client.UploadFile(cCtx.Context, cred, cCtx.Args().Get(0), cCtx.Args().Get(1))
			},
		},
		{
			Name:      "download",
			Usage:     "download a blob to a file, or to stdout without one",
			ArgsUsage: "<blob path> [file]",
			Flags:     credentialFlags,
			Action: func(cCtx *cli.Context) error {
				if cCtx.NArg() < 1 || cCtx.NArg() > 2 {
					return errors.New("expected <blob path> [file]")
				}
				client, cred := blobClient(cCtx)
				data, err := client.Download(cCtx.Context, cred, cCtx.Args().Get(0), cCtx.Args().Get(1))
				if err != nil {
					return err
				}
				if cCtx.Args().Get(1) == "" {
					_, err = os.Stdout.Write(data)
				}
				return err
			},
		},
		{
			Name:      "url",
			Usage:     "print the url a blob path maps to",
			ArgsUsage: "<account> <blob path>",
			Action: func(cCtx *cli.Context) error {
				if cCtx.NArg() != 2 {
					return errors.New("expected <account> <blob path>")
				}
				client := storage.NewBlobClient(cCtx.String("blob-endpoint-suffix"), nil)
				fmt.Println(client.BlobURL(cCtx.Args().Get(0), cCtx.Args().Get(1)))
				return nil
			},
		},
	},
}

func blobClient(cCtx *cli.Context) (*storage.BlobClient, interfaces.StorageCredential) {
	logger := flags.SetupLogger(cCtx, os.Stderr)
	cred := interfaces.StorageCredential{
		AccountName: cCtx.String("account-name"),
		AccountKey:  cCtx.String("account-key"),
	}
	return storage.NewBlobClient(cCtx.String("blob-endpoint-suffix"), logger), cred
}
