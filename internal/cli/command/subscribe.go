package command

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "subscribe to one or more channels and print messages as they arrive",
		ArgsUsage: "CHANNEL [CHANNEL ...]",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return cli.Exit("usage: pocketredis-cli subscribe CHANNEL [CHANNEL ...]", 1)
			}

			conn, err := dial(c)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			sub, acks, err := conn.Subscribe(c.Args().Slice()...)
			if err != nil {
				return err
			}
			for _, ack := range acks {
				fmt.Printf("subscribed to %s (%d total)\n", ack.Channel, ack.Count)
			}

			for {
				msg, err := sub.Receive()
				if err != nil {
					return err
				}
				fmt.Printf("[%s] %s\n", msg.Channel, string(msg.Payload))
			}
		},
	}
}
