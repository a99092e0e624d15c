package command

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func pingCommand() *cli.Command {
	return &cli.Command{
		Name:      "ping",
		Usage:     "ping the server",
		ArgsUsage: "[message]",
		Action: func(c *cli.Context) error {
			conn, err := dial(c)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			reply, err := conn.Ping(c.Args().First())
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}
}
