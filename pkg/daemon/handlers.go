package daemon

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battplug/pkg/calibration"
	"github.com/charlie0129/battplug/pkg/config"
	"github.com/charlie0129/battplug/pkg/mode"
	"github.com/charlie0129/battplug/pkg/types"
	"github.com/charlie0129/battplug/pkg/version"
)

func (d *Daemon) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", d.getConfig)
	router.GET("/mode", d.getMode)
	router.PUT("/mode", d.setMode)
	router.GET("/status", d.getStatus)
	router.GET("/calibration", d.getCalibration)
	router.PUT("/thresholds", d.setThresholds)
	router.GET("/events", d.streamEvents)
	router.GET("/version", getVersion)

	return router
}

func badRequest(c *gin.Context, err error) {
	c.IndentedJSON(http.StatusBadRequest, err.Error())
	_ = c.AbortWithError(http.StatusBadRequest, err)
}

func (d *Daemon) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(d.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (d *Daemon) getMode(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.ModeInfo())
}

func (d *Daemon) setMode(c *gin.Context) {
	var req types.ModeRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	m, err := mode.Parse(req.Mode)
	if err != nil {
		badRequest(c, err)
		return
	}

	var duration time.Duration
	if req.Duration != "" {
		duration, err = time.ParseDuration(req.Duration)
		if err != nil {
			badRequest(c, fmt.Errorf("invalid duration %q: %w", req.Duration, err))
			return
		}
		if duration < 0 {
			badRequest(c, fmt.Errorf("duration must not be negative, got %s", duration))
			return
		}
	}

	c.IndentedJSON(http.StatusCreated, d.SetMode(m, duration))
}

func (d *Daemon) getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.Status())
}

func (d *Daemon) getCalibration(c *gin.Context) {
	if d.calibration == nil {
		c.IndentedJSON(http.StatusOK, calibration.Status{Phase: calibration.PhaseIdle})
		return
	}
	c.IndentedJSON(http.StatusOK, d.calibration.Status())
}

func (d *Daemon) setThresholds(c *gin.Context) {
	var req types.ThresholdsRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := d.conf.SetThresholds(req.Low, req.High); err != nil {
		badRequest(c, err)
		return
	}

	if err := d.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.WithFields(logrus.Fields{"low": req.Low, "high": req.High}).Info("thresholds changed")

	// Apply right away instead of waiting for the battery to move.
	if d.monitor != nil {
		d.monitor.Wake()
	}

	msg := fmt.Sprintf("set low/high thresholds to %d%%/%d%%", req.Low, req.High)
	if m, _, _ := d.modes.Mode(); m != mode.Normal {
		msg += fmt.Sprintf(". Mode is %s, thresholds apply once it returns to normal.", m)
	}

	c.IndentedJSON(http.StatusCreated, msg)
}

func (d *Daemon) streamEvents(c *gin.Context) {
	ch := d.hub.Subscribe()
	defer d.hub.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
