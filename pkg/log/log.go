package log

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

func init() {
	logger.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
		DisableColors:   false,
		ForceColors:     true,
	}
}

// Print returns a request-scoped entry when a fiber context is available.
func Print(c *fiber.Ctx) *logrus.Entry {
	if c == nil {
		return logger.WithFields(logrus.Fields{})
	}

	remoteIP := c.IP()
	if v := c.Locals("remote_ip"); v != nil {
		if ip, ok := v.(string); ok && ip != "" {
			remoteIP = ip
		}
	}
	return logger.WithFields(logrus.Fields{
		"remote_ip": remoteIP,
		"method":    c.Method(),
		"uri":       c.OriginalURL(),
	})
}

// With returns an entry tagged with a component name for background workers.
func With(component string) *logrus.Entry {
	return logger.WithField("component", component)
}

// ClientOp returns an entry scoped to a dashboard client operation.
func ClientOp(clientID string, op string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"client_id": clientID,
		"op":        op,
	})
}
