package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/acpibatt/pkg/battery"
	"github.com/charlie0129/acpibatt/pkg/config"
	"github.com/charlie0129/acpibatt/pkg/poller"
	"github.com/charlie0129/acpibatt/pkg/powersource"
	"github.com/charlie0129/acpibatt/pkg/types"
)

func (c *Client) GetBattery() (*battery.Snapshot, error) {
	ret, err := c.Get("/battery")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get battery state")
	}

	var snap battery.Snapshot
	if err := json.Unmarshal([]byte(ret), &snap); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal battery state")
	}
	return &snap, nil
}

// GetProperties returns the published attributes keyed by name.
func (c *Client) GetProperties() (map[string]any, error) {
	ret, err := c.Get("/properties")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get properties")
	}

	var props map[string]any
	if err := json.Unmarshal([]byte(ret), &props); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal properties")
	}
	return props, nil
}

func (c *Client) GetLegacy() (*powersource.LegacyInfo, error) {
	ret, err := c.Get("/legacy")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get legacy battery info")
	}

	var info powersource.LegacyInfo
	if err := json.Unmarshal([]byte(ret), &info); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal legacy battery info")
	}
	return &info, nil
}

func (c *Client) GetStatus() (*types.StatusResponse, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get poller status")
	}

	var st types.StatusResponse
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal poller status")
	}
	return &st, nil
}

// TriggerPoll starts a poll cycle on path. A cycle already in flight is
// not an error; the response then has Started set to false.
func (c *Client) TriggerPoll(path poller.Path) (*types.PollResponse, error) {
	ret, err := c.Post("/poll", path.String())

	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusConflict {
		ret, err = se.Body, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to trigger %s poll", path)
	}

	var resp types.PollResponse
	if err := json.Unmarshal([]byte(ret), &resp); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal poll response")
	}
	return &resp, nil
}

// SetPollingInterval sets the default polling interval. It fails with a
// 409 StatusError when the interval is fixed by configuration.
func (c *Client) SetPollingInterval(d time.Duration) (string, error) {
	return c.Put("/polling-interval", strconv.FormatFloat(d.Seconds(), 'f', -1, 64))
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}

	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return v, nil
}

// GetMetrics returns the Prometheus exposition text.
func (c *Client) GetMetrics() (string, error) {
	ret, err := c.Get("/metrics")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get metrics")
	}
	return ret, nil
}
