package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mesh-node-map/pkg/dashboard"
	"mesh-node-map/pkg/mapview"
	"mesh-node-map/pkg/status"
)

// statusView is a status with its text resolved for the client.
type statusView struct {
	status.Status
	Message string `json:"message"`
	Visible bool   `json:"visible"`
}

func (s *Server) view(c *gin.Context, st status.Status, visible bool) statusView {
	return statusView{
		Status:  st,
		Message: s.translator.Message(c.GetHeader("Accept-Language"), st),
		Visible: visible,
	}
}

func (s *Server) getStatus(c *gin.Context) {
	st, visible, err := s.board.Current(c.Request.Context())
	if shouldInterupt(err, c) {
		return
	}
	c.JSON(http.StatusOK, s.view(c, st, visible))
}

// events streams every status update as a server-sent event.
func (s *Server) events(c *gin.Context) {
	ctx := c.Request.Context()
	updates := s.stream.Subscribe(ctx, 16)

	if st, visible, err := s.board.Current(ctx); err == nil && st.Seq > 0 {
		c.SSEvent("status", s.view(c, st, visible))
		c.Writer.Flush()
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case st, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("status", s.view(c, st, true))
			return true
		}
	})
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.dash.Stats(c.Request.Context())
	if shouldInterupt(err, c) {
		return
	}
	c.JSON(http.StatusOK, stats)
}

// getMarkers answers GET /api/markers[?inView=1]. Bodies are cached until
// the session version moves on.
func (s *Server) getMarkers(c *gin.Context) {
	ctx := c.Request.Context()
	inView := c.Query("inView") == "1" || c.Query("inView") == "true"

	version, err := s.dash.Version(ctx)
	if shouldInterupt(err, c) {
		return
	}
	key := fmt.Sprintf("markers:%t", inView)
	if inView {
		vp, err := s.dash.Viewport(ctx)
		if shouldInterupt(err, c) {
			return
		}
		key += fmt.Sprintf(":%v,%v,%d,%dx%d", vp.Center.Lat, vp.Center.Lng, vp.Zoom, vp.Width, vp.Height)
	}

	body, err := s.cache.Get(ctx, version, key, func(ctx context.Context) ([]byte, error) {
		markers, err := s.dash.Displayed(ctx, inView)
		if err != nil {
			return nil, err
		}
		return json.Marshal(gin.H{"version": version, "markers": markers})
	})
	if shouldInterupt(err, c) {
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (s *Server) getClusters(c *gin.Context) {
	clusters, err := s.dash.Clusters(c.Request.Context())
	if shouldInterupt(err, c) {
		return
	}
	if clusters == nil {
		clusters = []mapview.Cluster{}
	}
	c.JSON(http.StatusOK, gin.H{"clusters": clusters})
}

func (s *Server) getViewport(c *gin.Context) {
	vp, err := s.dash.Viewport(c.Request.Context())
	if shouldInterupt(err, c) {
		return
	}
	c.JSON(http.StatusOK, vp)
}

func (s *Server) putViewport(c *gin.Context) {
	var vp mapview.Viewport
	if err := c.ShouldBindJSON(&vp); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorCannotParseRequest, err)
		return
	}
	vp, err := s.dash.SetViewport(c.Request.Context(), vp)
	if shouldInterupt(err, c) {
		return
	}
	c.JSON(http.StatusOK, vp)
}

type filterResponse struct {
	Visible int                   `json:"visible"`
	Filters dashboard.FilterState `json:"filters"`
}

func (s *Server) respondFilters(c *gin.Context, visible int) {
	f, err := s.dash.Filters(c.Request.Context())
	if shouldInterupt(err, c) {
		return
	}
	c.JSON(http.StatusOK, filterResponse{Visible: visible, Filters: f})
}

func (s *Server) getFilters(c *gin.Context) {
	f, err := s.dash.Filters(c.Request.Context())
	if shouldInterupt(err, c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"filters": f})
}

func (s *Server) putFilters(c *gin.Context) {
	var f dashboard.FilterState
	if err := c.ShouldBindJSON(&f); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorCannotParseRequest, err)
		return
	}
	n, err := s.dash.ApplyFilters(c.Request.Context(), f)
	if shouldInterupt(err, c) {
		return
	}
	s.respondFilters(c, n)
}

func (s *Server) patchFilter(c *gin.Context) {
	var body struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorCannotParseRequest, err)
		return
	}
	n, err := s.dash.SetFilter(c.Request.Context(), c.Param("field"), body.Value)
	if shouldInterupt(err, c) {
		return
	}
	s.respondFilters(c, n)
}

func (s *Server) resetFilters(c *gin.Context) {
	n, err := s.dash.ResetFilters(c.Request.Context())
	if shouldInterupt(err, c) {
		return
	}
	s.respondFilters(c, n)
}

func (s *Server) search(c *gin.Context) {
	res, err := s.dash.Search(c.Request.Context(), c.Query("q"))
	if shouldInterupt(err, c) {
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) selectHit(c *gin.Context) {
	var hit dashboard.Hit
	if err := c.ShouldBindJSON(&hit); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorCannotParseRequest, err)
		return
	}
	sel, err := s.dash.Select(c.Request.Context(), hit)
	if shouldInterupt(err, c) {
		return
	}
	c.JSON(http.StatusOK, sel)
}

// refresh queues a manual refresh. Repeated clicks from one client wait out
// the cooldown; if the client gives up first the request is rejected.
func (s *Server) refresh(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*s.cfg.RefreshCooldown+time.Second)
	defer cancel()

	waited, err := s.limiter.Acquire(ctx, c.ClientIP())
	if err != nil {
		abortWithEncoding(c, http.StatusTooManyRequests, errorRefreshThrottled, err)
		return
	}

	queued := s.trigger.Trigger()
	c.JSON(http.StatusAccepted, gin.H{
		"queued":   queued,
		"waitedMs": waited.Milliseconds(),
	})
}

// export answers with the feed exactly as it was last downloaded.
func (s *Server) export(c *gin.Context) {
	text, err := s.dash.Export(c.Request.Context())
	if shouldInterupt(err, c) {
		return
	}
	c.Header("Content-Disposition", `attachment; filename="markers_export.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(text))
}

// contributorNodes lists the nodes registered under one contributor ID.
func (s *Server) contributorNodes(c *gin.Context) {
	id := c.Param("id")
	nodes, err := s.dash.ContributorNodes(c.Request.Context(), id)
	if shouldInterupt(err, c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "nodes": nodes})
}
