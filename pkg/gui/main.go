package gui

import (
	"context"
	"fmt"
	"time"

	"github.com/getlantern/systray"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battplug/pkg/calibration"
	"github.com/charlie0129/battplug/pkg/mode"
	"github.com/charlie0129/battplug/pkg/types"
)

const (
	refreshInterval  = 2 * time.Second
	overrideDuration = time.Hour
)

type modeRequest struct {
	mode     mode.Mode
	duration time.Duration
}

func onReady(ctx context.Context) {
	systray.SetTitle("🔋 Loading...")
	systray.SetTooltip("battplug - Smart Plug Battery Manager")

	mStatus := systray.AddMenuItem("Status: Connecting...", "Current battery status")
	mStatus.Disable()

	mMode := systray.AddMenuItem("Mode: -", "Current control mode")
	mMode.Disable()

	mBand := systray.AddMenuItem("Band: -", "Charge band kept by the daemon")
	mBand.Disable()

	mCalibration := systray.AddMenuItem("Calibration: -", "Calibration progress")
	mCalibration.Disable()

	systray.AddSeparator()

	mNormal := systray.AddMenuItem("Normal", "Let the daemon manage the plug")
	mPause := systray.AddMenuItem("Pause for 1 hour", "Leave the plug alone for an hour")
	mForceOn := systray.AddMenuItem("Force on for 1 hour", "Keep the plug on for an hour")
	mForceOff := systray.AddMenuItem("Force off for 1 hour", "Keep the plug off for an hour")

	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit the tray")

	items := statusItems{status: mStatus, mode: mMode, band: mBand, calibration: mCalibration}
	refresh := make(chan struct{}, 1)

	go func() {
		for {
			startEventBridge(ctx, refresh)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}()

	go func() {
		modeChan := make(chan modeRequest)
		go func() {
			for {
				select {
				case <-mNormal.ClickedCh:
					modeChan <- modeRequest{mode: mode.Normal}
				case <-mPause.ClickedCh:
					modeChan <- modeRequest{mode: mode.Paused, duration: overrideDuration}
				case <-mForceOn.ClickedCh:
					modeChan <- modeRequest{mode: mode.ForceOn, duration: overrideDuration}
				case <-mForceOff.ClickedCh:
					modeChan <- modeRequest{mode: mode.ForceOff, duration: overrideDuration}
				case <-mQuit.ClickedCh:
					systray.Quit()
					return
				}
			}
		}()

		for {
			select {
			case req := <-modeChan:
				systray.SetTitle(fmt.Sprintf("Switching to %s...", req.mode))
				if _, err := apiClient.SetMode(req.mode, req.duration); err != nil {
					logrus.WithError(err).WithField("mode", req.mode).Error("failed to set mode")
				}
				updateStatus(items)
			case <-refresh:
				updateStatus(items)
			case <-time.After(refreshInterval):
				updateStatus(items)
			}
		}
	}()

	updateStatus(items)
}

func onExit() {
	logrus.Info("battplug tray exiting")
}

type statusItems struct {
	status      *systray.MenuItem
	mode        *systray.MenuItem
	band        *systray.MenuItem
	calibration *systray.MenuItem
}

func updateStatus(items statusItems) {
	st, err := apiClient.GetStatus()
	if err != nil {
		logrus.WithError(err).Debug("failed to get status")
		systray.SetTitle("🚫 Offline")
		items.status.SetTitle("Status: Disconnected")
		items.mode.SetTitle("Mode: -")
		items.band.SetTitle("Band: -")
		items.calibration.SetTitle("Calibration: -")
		return
	}

	systray.SetTitle(formatTitle(st))
	items.status.SetTitle("Status: " + formatBattery(st.Battery, st.Plug))
	items.mode.SetTitle("Mode: " + formatMode(st.Mode))
	items.band.SetTitle(fmt.Sprintf("Band: %d%% - %d%%", st.LowThreshold, st.HighThreshold))
	items.calibration.SetTitle("Calibration: " + formatCalibration(st.Calibration))
}

func formatTitle(st types.Status) string {
	if st.Phase == types.ControlEmergency {
		return "🪫 Emergency"
	}
	if !st.Battery.Available {
		return "🔋 ?"
	}

	icon := "🔋"
	if st.Battery.PowerConnected {
		icon = "⚡"
	}
	title := fmt.Sprintf("%s %d%%", icon, st.Battery.Percent)
	if st.Mode.Mode != string(mode.Normal) {
		title += " · " + st.Mode.Mode
	}
	return title
}

func formatBattery(b types.BatteryInfo, p types.PlugInfo) string {
	if !b.Available {
		return "battery unavailable"
	}

	s := fmt.Sprintf("%d%%", b.Percent)
	switch {
	case !b.PowerKnown:
	case b.PowerConnected:
		s += ", charging"
	default:
		s += ", discharging"
	}

	switch {
	case !p.Known:
		s += ", plug unknown"
	case p.On:
		s += ", plug on"
	default:
		s += ", plug off"
	}
	return s
}

func formatMode(m types.ModeInfo) string {
	if !m.Expires {
		return m.Mode
	}
	return fmt.Sprintf("%s (%s left)", m.Mode, formatRemaining(time.Duration(m.RemainingSeconds)*time.Second))
}

// formatRemaining renders a duration as "1h05m", "12m" or "40s".
func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)

	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func formatCalibration(st calibration.Status) string {
	switch {
	case st.Completed || st.Phase == calibration.PhaseDone:
		return "done"
	case !st.Enabled:
		return "disabled"
	case st.Phase.Active():
		return fmt.Sprintf("%s (cycle %d/%d)", st.Phase, st.Cycle, st.Cycles)
	default:
		return string(st.Phase)
	}
}
