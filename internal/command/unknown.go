package command

import (
	"fmt"
	"io"

	"pocketredis.dev/pocketredis/pkg/frame"
)

// Unknown represents any command name this server does not implement.
type Unknown struct {
	Name string
}

// Apply replies with the standard unknown-command error.
func (u Unknown) Apply(w io.Writer) error {
	return frame.Encode(w, frame.Err(fmt.Sprintf("ERR unknown command '%s'", u.Name)))
}
