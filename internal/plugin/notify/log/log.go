package log

import (
	"context"

	charmlog "github.com/charmbracelet/log"
	registrynotify "github.com/corval/docqa-service/internal/registry/notify"
)

func init() {
	registrynotify.Register(registrynotify.Plugin{
		Name: "log",
		Loader: func(ctx context.Context) (registrynotify.Notifier, error) {
			return &LogNotifier{}, nil
		},
	})
}

// LogNotifier writes notifications to the service log instead of delivering
// them. Default when no email provider is configured.
type LogNotifier struct{}

func (n *LogNotifier) Send(ctx context.Context, msg registrynotify.Message) error {
	charmlog.Info("Notification", "to", msg.To, "subject", msg.Subject)
	return nil
}
