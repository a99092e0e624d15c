package command

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "get a key's value",
		ArgsUsage: "KEY",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: pocketredis-cli get KEY", 1)
			}

			conn, err := dial(c)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			value, ok, err := conn.Get(c.Args().First())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("(nil)")
				return nil
			}
			fmt.Println(string(value))
			return nil
		},
	}
}
