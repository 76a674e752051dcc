package main

import (
	"github.com/gin-gonic/gin"

	"github.com/kbukum/regkit/discovery"
	apperrors "github.com/kbukum/regkit/errors"
	"github.com/kbukum/regkit/server"
)

// clientFunc returns the live discovery client, or nil while discovery is
// not running.
type clientFunc func() *discovery.Client

type discoverResponse struct {
	Service  string            `json:"service"`
	Address  string            `json:"address"`
	ID       string            `json:"id"`
	Host     string            `json:"host"`
	Port     int               `json:"port"`
	Tags     []string          `json:"tags,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
	Strategy string            `json:"strategy"`
}

// discoverHandler serves GET /v1/discover/:service?tag=&strategy=. The
// strategy parameter is parsed here; an empty one means fallback.
func discoverHandler(client clientFunc, fallback discovery.Strategy) gin.HandlerFunc {
	return func(c *gin.Context) {
		cl := client()
		if cl == nil {
			server.RespondWithError(c, apperrors.ServiceUnavailable("discovery"))
			return
		}

		strategy := fallback
		if raw := c.Query("strategy"); raw != "" {
			s, err := discovery.ParseStrategy(raw)
			if err != nil {
				server.RespondWithError(c, err)
				return
			}
			strategy = s
		}

		q := discovery.Query{Service: c.Param("service"), Tag: c.Query("tag"), Strategy: strategy}
		inst, err := cl.DiscoverInstance(c.Request.Context(), q)
		if err != nil {
			server.RespondWithError(c, err)
			return
		}

		server.RespondOK(c, discoverResponse{
			Service:  q.Service,
			Address:  inst.HostPort(),
			ID:       inst.ID,
			Host:     inst.Address,
			Port:     inst.Port,
			Tags:     inst.Tags,
			Meta:     inst.Meta,
			Strategy: strategy.String(),
		})
	}
}
