package gui

import (
	"context"

	"github.com/getlantern/systray"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/battplug/pkg/client"
	"github.com/charlie0129/battplug/pkg/events"
	"github.com/charlie0129/battplug/pkg/version"
)

var apiClient *client.Client

func NewTrayCommand(unixSocketPath string, groupID string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tray",
		Short:   "Show battplug in the system tray",
		GroupID: groupID,
		Long: `Show battplug in the system tray.

The tray shows the battery charge and the active mode, and lets you switch modes without the command line.`,
		Run: func(_ *cobra.Command, _ []string) {
			Run(unixSocketPath)
		},
	}

	return cmd
}

func Run(unixSocketPath string) {
	apiClient = client.NewClient(unixSocketPath)
	logrus.WithField("version", version.Version).WithField("gitCommit", version.GitCommit).Info("battplug tray")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	systray.Run(func() { onReady(ctx) }, onExit)
}

// startEventBridge turns daemon events into immediate tray refreshes.
func startEventBridge(ctx context.Context, refresh chan<- struct{}) {
	for ev := range apiClient.SubscribeEvents(ctx) {
		logrus.WithFields(logrus.Fields{
			"event": ev.Name,
			"data":  string(ev.Data),
		}).Debug("new event")

		switch ev.Name {
		case events.Notification:
			payload, err := events.DecodeAs[events.NotificationEvent](ev)
			if err != nil {
				logrus.WithError(err).Error("failed to decode notification event")
				continue
			}
			systray.SetTooltip(payload.Title + ": " + payload.Message)
		case events.Emergency:
			systray.SetTitle("🪫 Emergency")
		}

		select {
		case refresh <- struct{}{}:
		default:
		}
	}
	logrus.Debug("event stream closed")
}
