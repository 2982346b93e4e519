// cmd/mintadmin is a small urfave/cli front-end over the admin gRPC
// surface (internal/mint/adminrpc.go), grounded on the teacher's own
// cmd/mint/mint-cli — a single-binary command-line client hitting one
// long-running server's admin endpoints, rather than a full wallet CLI.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/paynet-mint/node/internal/mint"
)

const adminAddrFlag = "addr"

func main() {
	app := &cli.App{
		Name:  "mintadmin",
		Usage: "administer a running mint node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  adminAddrFlag,
				Usage: "admin gRPC address of the mint node",
				Value: "127.0.0.1:7777",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "rotate-keysets",
				Usage:  "retire every active keyset in favor of a freshly derived successor",
				Action: rotateKeysets,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func dialAdmin(ctx *cli.Context) (*mint.AdminClient, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(ctx.String(adminAddrFlag), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dialing %s: %w", ctx.String(adminAddrFlag), err)
	}
	return mint.NewAdminClient(conn), conn, nil
}

func rotateKeysets(ctx *cli.Context) error {
	client, conn, err := dialAdmin(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	rpcCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.RotateKeysets(rpcCtx)
	if err != nil {
		return fmt.Errorf("rotating keysets: %w", err)
	}

	fmt.Println("new keysets:")
	for _, id := range resp.NewKeysetIds {
		fmt.Printf("\t%s\n", id)
	}
	return nil
}
