package daemon

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/config"
	"github.com/charlie0129/acpibatt/pkg/poller"
	"github.com/charlie0129/acpibatt/pkg/types"
	"github.com/charlie0129/acpibatt/pkg/version"
)

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getBattery(c *gin.Context) {
	snap, err := battPoller.Snapshot(c.Request.Context())
	if err != nil {
		_ = c.AbortWithError(http.StatusServiceUnavailable, err)
		return
	}
	c.IndentedJSON(http.StatusOK, snap)
}

func getProperties(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, battPoller.Store().Properties())
}

func getLegacy(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, battPoller.Store().Legacy())
}

func getStatus(c *gin.Context) {
	st, err := battPoller.Status(c.Request.Context())
	if err != nil {
		_ = c.AbortWithError(http.StatusServiceUnavailable, err)
		return
	}

	resp := types.StatusResponse{Status: st}
	if scheduler != nil {
		if next, running := scheduler.Status(); running && !next.IsZero() {
			resp.NextFreshRead = &next
		}
	}
	c.IndentedJSON(http.StatusOK, resp)
}

// postPoll starts a poll cycle. The body names the path, "fresh" or
// "refresh"; an empty body means refresh.
func postPoll(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	path, ok := poller.ParsePath(strings.Trim(strings.TrimSpace(string(body)), `"`))
	if !ok {
		_ = c.AbortWithError(http.StatusBadRequest, fmt.Errorf("unknown poll path %q", body))
		return
	}

	started, err := battPoller.TriggerPoll(c.Request.Context(), path)
	if err != nil {
		_ = c.AbortWithError(http.StatusServiceUnavailable, err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"path":    path,
		"started": started,
	}).Info("poll requested")

	code := http.StatusOK
	if !started {
		code = http.StatusConflict
	}
	c.IndentedJSON(code, types.PollResponse{Path: path, Started: started})
}

// setPollingInterval takes the interval in seconds.
func setPollingInterval(c *gin.Context) {
	var seconds float64
	if err := c.BindJSON(&seconds); err != nil {
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	d := time.Duration(seconds * float64(time.Second))
	err := battPoller.SetPollingInterval(c.Request.Context(), d)
	switch {
	case errors.Is(err, poller.ErrInvalidInterval):
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	case errors.Is(err, poller.ErrIntervalOverridden):
		_ = c.AbortWithError(http.StatusConflict, err)
		return
	case err != nil:
		_ = c.AbortWithError(http.StatusServiceUnavailable, err)
		return
	}

	logrus.WithField("interval", d).Info("set polling interval")
	c.IndentedJSON(http.StatusCreated, "ok")
}

// streamEvents forwards hub events as server-sent events until the client
// goes away or the hub closes.
func streamEvents(c *gin.Context) {
	ch := sseHub.Subscribe()
	defer sseHub.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev.Data)
			return true
		case <-keepalive.C:
			_, _ = io.WriteString(w, ": keepalive\n\n")
			return true
		}
	})
}

func getMetrics(c *gin.Context) {
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
