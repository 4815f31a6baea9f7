package main

import (
	"fmt"
	"io"
	"log"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ruteri/pod-mint-service/interfaces"
	"github.com/ruteri/pod-mint-service/verifier"
	"github.com/urfave/cli/v2"
)

var flagOutDir = &cli.StringFlag{
	Name:  "out-dir",
	Value: ".",
	Usage: "directory the key files are written to",
}

var flagProvingKey = &cli.StringFlag{
	Name:  "proving-key",
	Value: "ownership.pk",
	Usage: "proving key file written by setup",
}

const (
	provingKeyFile   = "ownership.pk"
	verifyingKeyFile = "ownership.vk"
)

func main() {
	app := &cli.App{
		Name:  "circuit-setup",
		Usage: "Generate and exercise ownership circuit keys",
		Commands: []*cli.Command{
			{
				Name:  "setup",
				Usage: "compile the ownership circuit and write its Groth16 proving and verifying keys",
				Flags: []cli.Flag{flagOutDir},
				Action: func(cCtx *cli.Context) error {
					_, pk, vk, err := verifier.SetupOwnershipCircuit()
					if err != nil {
						return err
					}

					dir := cCtx.String(flagOutDir.Name)
					if err := writeKey(filepath.Join(dir, provingKeyFile), pk); err != nil {
						return err
					}
					if err := writeKey(filepath.Join(dir, verifyingKeyFile), vk); err != nil {
						return err
					}

					fmt.Printf("wrote %s and %s to %s\n", provingKeyFile, verifyingKeyFile, dir)
					return nil
				},
			},
			{
				Name:      "prove",
				Usage:     "prove ownership for a template and print the serialized proof",
				ArgsUsage: "<identity secret (decimal)> <template ID (hex)>",
				Flags:     []cli.Flag{flagProvingKey},
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 2 {
						return fmt.Errorf("expected identity secret and template ID")
					}
					secret, ok := new(big.Int).SetString(cCtx.Args().Get(0), 10)
					if !ok {
						return fmt.Errorf("invalid identity secret %q", cCtx.Args().Get(0))
					}
					templateID, err := interfaces.NewContentIDFromHex(cCtx.Args().Get(1))
					if err != nil {
						return err
					}

					ccs, err := verifier.CompileOwnershipCircuit()
					if err != nil {
						return err
					}
					f, err := os.Open(cCtx.String(flagProvingKey.Name))
					if err != nil {
						return err
					}
					defer f.Close()
					pk, err := verifier.ReadProvingKey(f)
					if err != nil {
						return err
					}

					proof, err := verifier.NewProver(ccs, pk).ProveOwnership(secret, verifier.Scope{TemplateID: templateID}, time.Now())
					if err != nil {
						return err
					}
					encoded, err := verifier.Encode(proof)
					if err != nil {
						return err
					}
					fmt.Println(encoded)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func writeKey(path string, key io.WriterTo) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := key.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
