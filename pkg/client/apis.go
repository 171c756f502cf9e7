package client

import (
	"encoding/json"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/battplug/pkg/calibration"
	"github.com/charlie0129/battplug/pkg/config"
	"github.com/charlie0129/battplug/pkg/mode"
	"github.com/charlie0129/battplug/pkg/types"
)

func (c *Client) GetMode() (types.ModeInfo, error) {
	var info types.ModeInfo
	err := c.getJSON("/mode", &info)
	return info, err
}

// SetMode switches the daemon's mode. A zero d means no expiry.
func (c *Client) SetMode(m mode.Mode, d time.Duration) (types.ModeInfo, error) {
	req := types.ModeRequest{Mode: m.String()}
	if d > 0 {
		req.Duration = d.String()
	}

	var info types.ModeInfo
	err := c.putJSON("/mode", req, &info)
	return info, err
}

func (c *Client) GetStatus() (types.Status, error) {
	var st types.Status
	err := c.getJSON("/status", &st)
	return st, err
}

func (c *Client) GetCalibration() (calibration.Status, error) {
	var st calibration.Status
	err := c.getJSON("/calibration", &st)
	return st, err
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	var conf config.RawFileConfig
	if err := c.getJSON("/config", &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

// SetThresholds returns the daemon's human readable confirmation.
func (c *Client) SetThresholds(low, high int) (string, error) {
	var msg string
	err := c.putJSON("/thresholds", types.ThresholdsRequest{Low: low, High: high}, &msg)
	return msg, err
}

func (c *Client) GetVersion() (string, error) {
	var v string
	err := c.getJSON("/version", &v)
	return v, err
}

func (c *Client) getJSON(path string, out any) error {
	ret, err := c.Get(path)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to get %s", path)
	}
	if err := json.Unmarshal([]byte(ret), out); err != nil {
		return pkgerrors.Wrapf(err, "failed to decode %s response", path)
	}
	return nil
}

func (c *Client) putJSON(path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	ret, err := c.Put(path, string(payload))
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to set %s", path)
	}
	if err := json.Unmarshal([]byte(ret), out); err != nil {
		return pkgerrors.Wrapf(err, "failed to decode %s response", path)
	}
	return nil
}
