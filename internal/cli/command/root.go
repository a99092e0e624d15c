// Package command provides the pocketredis-cli subcommand definitions:
// an urfave/cli/v2 App with global flags shared across a group of
// subcommands.
package command

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"pocketredis.dev/pocketredis/pkg/client"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:  "pocketredis-cli",
		Usage: "command-line client for pocketredis",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			pingCommand(),
			getCommand(),
			setCommand(),
			publishCommand(),
			subscribeCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Aliases: []string{"h"},
			Usage:   "server host",
			EnvVars: []string{"POCKETREDIS_HOST"},
			Value:   "127.0.0.1",
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "server port",
			EnvVars: []string{"POCKETREDIS_PORT"},
			Value:   6379,
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "dial timeout",
			Value: 5 * time.Second,
		},
	}
}

// dial opens a client connection using the global host/port/timeout flags.
func dial(c *cli.Context) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", c.String("host"), c.Int("port"))
	return client.Dial(addr, c.Duration("timeout"))
}
