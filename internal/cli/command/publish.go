package command

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "publish a message to a channel",
		ArgsUsage: "CHANNEL MESSAGE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("usage: pocketredis-cli publish CHANNEL MESSAGE", 1)
			}

			conn, err := dial(c)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			n, err := conn.Publish(c.Args().Get(0), []byte(c.Args().Get(1)))
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
}
