package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"pocketredis.dev/pocketredis/pkg/client"
)

func setCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "set a key's value, with an optional expiration",
		ArgsUsage: "KEY VALUE",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "ex", Usage: "expire after N seconds"},
			&cli.Int64Flag{Name: "px", Usage: "expire after N milliseconds"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("usage: pocketredis-cli set KEY VALUE", 1)
			}

			conn, err := dial(c)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			var opts []client.SetOption
			if ex := c.Int64("ex"); ex > 0 {
				opts = append(opts, client.WithEX(ex))
			}
			if px := c.Int64("px"); px > 0 {
				opts = append(opts, client.WithPX(px))
			}

			if err := conn.Set(c.Args().Get(0), []byte(c.Args().Get(1)), opts...); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}
}
