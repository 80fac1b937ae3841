package utils

import (
	"errors"
	"io"
	"net"
	"os"

	"github.com/dlcy/iptv-hunan/internal/logger"
)

// Close closes c for deferred cleanup. Errors that only mean "already closed"
// are dropped; anything else is logged at debug level when log is set.
func Close(c io.Closer, log logger.Logger, what string) {
	err := c.Close()
	if err == nil || errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
		return
	}
	if log != nil {
		log.Debug("close failed", logger.String("resource", what), logger.Error(err))
	}
}
