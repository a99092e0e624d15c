package config

import (
	"errors"

	"github.com/knadh/koanf/maps"
)

// errReadBytesNotSupported is returned when ReadBytes is called on the map
// provider; koanf falls back to Read() for providers that implement it.
var errReadBytesNotSupported = errors.New("config: ReadBytes not supported by map provider, use Read() instead")

// confmapProvider is a koanf provider backed by an in-memory map, used to
// layer flag values on top of file/env configuration.
type confmapProvider map[string]any

func (m confmapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytesNotSupported
}

func (m confmapProvider) Read() (map[string]any, error) {
	return maps.Unflatten(m, "."), nil
}
