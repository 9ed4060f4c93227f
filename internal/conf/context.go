package conf

import (
	"fmt"

	"github.com/dtmfin/dtmfin/internal/errors"
	"github.com/dtmfin/dtmfin/internal/logger"
)

// Context carries the loaded settings and the logger shared by the commands
// of one invocation.
type Context struct {
	Settings *Settings
	Logger   logger.Logger

	central *logger.CentralLogger
}

// Init stores settings and opens the central logger they describe.
func (c *Context) Init(settings *Settings) error {
	central, err := logger.NewCentralLogger(settings.LoggingConfig())
	if err != nil {
		return errors.New(fmt.Errorf("error initializing logger: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	c.Settings = settings
	c.central = central
	c.Logger = central.Module("")
	return nil
}

// Close flushes and closes the log outputs. It is safe to call before Init.
func (c *Context) Close() error {
	if c.central == nil {
		return nil
	}
	err := c.central.Close()
	c.central = nil
	return err
}
