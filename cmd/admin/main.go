package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/ruteri/pod-mint-service/api/clients"
	"github.com/ruteri/pod-mint-service/cmd/flags"
	"github.com/ruteri/pod-mint-service/cryptoutils"
	"github.com/ruteri/pod-mint-service/kms"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"
)

var flagEntriesFile = &cli.StringFlag{
	Name:     "entries-file",
	Required: true,
	Usage:    "JSON file with simplified POD entries",
}

var flagSignerKey = &cli.StringFlag{
	Name:  "signer-key",
	Usage: "encoded signer key seed overriding the server default",
}

var flagFolder = &cli.StringFlag{
	Name:  "folder",
	Usage: "wallet folder the minted POD is placed in",
}

var flagPodID = &cli.StringFlag{
	Name:     "pod-id",
	Required: true,
	Usage:    "template content ID (hex)",
}

var flagShamirThreshold = &cli.IntFlag{
	Name:  "shamir-threshold",
	Value: 2,
}

var flagShamirTotal = &cli.IntFlag{
	Name:  "shamir-total-shares",
	Value: 3,
}

var serverFlags = []cli.Flag{
	flags.ServerAddrFlag,
	flags.AdminUserFlag,
	flags.AdminPasswordFlag,
}

func newClient(cCtx *cli.Context) *clients.AdminClient {
	return clients.NewAdminClient(
		cCtx.String(flags.ServerAddrFlag.Name),
		cCtx.String(flags.AdminUserFlag.Name),
		cCtx.String(flags.AdminPasswordFlag.Name),
	)
}

func main() {
	app := &cli.App{
		Name:           "pod-mint-admin",
		Usage:          "Manage mintable POD templates and signer keys",
		DefaultCommand: "list",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list mintable templates",
				Flags: serverFlags,
				Action: func(cCtx *cli.Context) error {
					templates, err := newClient(cCtx).List(cCtx.Context)
					if err != nil {
						return err
					}

					ids := make([]string, 0, len(templates))
					for id := range templates {
						ids = append(ids, id)
					}
					sort.Strings(ids)

					for _, id := range ids {
						t := templates[id]
						if t.Error != "" {
							fmt.Printf("%s\t<%s>\n", id, t.Error)
							continue
						}
						fmt.Printf("%s\t%s\t%s\n", id, t.PodName, t.PodDescription)
					}
					return nil
				},
			},
			{
				Name:  "add",
				Usage: "register a template",
				Flags: append([]cli.Flag{flagEntriesFile, flagSignerKey, flagFolder}, serverFlags...),
				Action: func(cCtx *cli.Context) error {
					entries, err := os.ReadFile(cCtx.String(flagEntriesFile.Name))
					if err != nil {
						return err
					}
					if !json.Valid(entries) {
						return fmt.Errorf("%s is not valid JSON", cCtx.String(flagEntriesFile.Name))
					}

					var folder *string
					if cCtx.IsSet(flagFolder.Name) {
						f := cCtx.String(flagFolder.Name)
						folder = &f
					}

					podID, err := newClient(cCtx).Add(cCtx.Context, entries, cCtx.String(flagSignerKey.Name), folder)
					if err != nil {
						return err
					}
					fmt.Println(podID)
					return nil
				},
			},
			{
				Name:  "remove",
				Usage: "remove a template",
				Flags: append([]cli.Flag{flagPodID}, serverFlags...),
				Action: func(cCtx *cli.Context) error {
					return newClient(cCtx).Remove(cCtx.Context, cCtx.String(flagPodID.Name))
				},
			},
			{
				Name:  "content",
				Usage: "print the entries of a template",
				Flags: append([]cli.Flag{flagPodID}, serverFlags...),
				Action: func(cCtx *cli.Context) error {
					entries, err := newClient(cCtx).Content(cCtx.Context, cCtx.String(flagPodID.Name))
					if err != nil {
						return err
					}
					out, err := json.MarshalIndent(entries, "", "  ")
					if err != nil {
						return err
					}
					fmt.Println(string(out))
					return nil
				},
			},
			{
				Name:  "link",
				Usage: "print the wallet mint link of a template",
				Flags: append([]cli.Flag{flagPodID}, serverFlags...),
				Action: func(cCtx *cli.Context) error {
					link, err := newClient(cCtx).MintLink(cCtx.Context, cCtx.String(flagPodID.Name))
					if err != nil {
						return err
					}
					fmt.Println(link)
					return nil
				},
			},
			{
				Name:  "generate-signer-key",
				Usage: "generate a signer key seed and print it with its public key",
				Action: func(cCtx *cli.Context) error {
					seed := make([]byte, cryptoutils.SeedSize)
					if _, err := rand.Read(seed); err != nil {
						return err
					}
					signer, err := cryptoutils.NewSignerFromSeed(seed)
					if err != nil {
						return err
					}
					fmt.Printf("seed:       %s\n", hex.EncodeToString(seed))
					fmt.Printf("public key: %s\n", signer.PublicKey())
					return nil
				},
			},
			{
				Name:      "split-signer-key",
				Usage:     "split a signer key seed into Shamir shares",
				ArgsUsage: "<encoded seed>",
				Flags:     []cli.Flag{flagShamirTotal, flagShamirThreshold},
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 1 {
						return fmt.Errorf("expected the encoded seed as the only argument")
					}
					seed, err := cryptoutils.DecodeSeed(cCtx.Args().First())
					if err != nil {
						return err
					}

					shares, err := kms.SplitSeed(seed, cCtx.Int(flagShamirTotal.Name), cCtx.Int(flagShamirThreshold.Name))
					if err != nil {
						return err
					}
					for _, share := range shares {
						fmt.Println(share)
					}
					return nil
				},
			},
			{
				Name:      "hash-password",
				Usage:     "print a bcrypt hash for the credentials file",
				ArgsUsage: "<password>",
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 1 {
						return fmt.Errorf("expected the password as the only argument")
					}
					hash, err := bcrypt.GenerateFromPassword([]byte(cCtx.Args().First()), bcrypt.DefaultCost)
					if err != nil {
						return err
					}
					fmt.Println(string(hash))
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
