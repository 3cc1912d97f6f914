//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package generic provides a REST enrichment endpoint.
//
// The server exposes three routes:
//
//	POST /v1/enrich   - enrich an access request, returning matched tags
//	GET  /v1/version  - current service-tags and resource-trie versions
//	GET  /healthz     - liveness
//
// The enrich request body names the accessed resource and access type:
//
//	{
//	    "resource": {"database": "sales", "table": "orders"},
//	    "accessType": "select"
//	}
package generic

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/manetu/tagenricher/pkg/enricher"
	"github.com/manetu/tagenricher/pkg/enricher/model"
	"github.com/manetu/tagenricher/pkg/enrichpoint"

	"github.com/labstack/echo/v4"
)

// EnrichRequest is the wire form of an enrichment query.
type EnrichRequest struct {
	Resource   map[string]interface{} `json:"resource"`
	AccessType string                 `json:"accessType,omitempty"`
	AccessTime *time.Time             `json:"accessTime,omitempty"`
}

// EnrichResponse carries the matched tags.
type EnrichResponse struct {
	ServiceName string              `json:"serviceName"`
	TagVersion  int64               `json:"tagVersion"`
	Tags        []*model.TagForEval `json:"tags"`
}

// VersionResponse reports the snapshot and index versions.
type VersionResponse struct {
	ServiceName         string `json:"serviceName"`
	ServiceTagsVersion  int64  `json:"serviceTagsVersion"`
	ResourceTrieVersion int64  `json:"resourceTrieVersion"`
}

// Server serves the enrichment REST API.
type Server struct {
	echo *echo.Echo
}

// CreateServer creates and starts a generic enrichment endpoint on the
// given port.
func CreateServer(e *enricher.TagEnricher, port int) (enrichpoint.Server, error) {
	router := echo.New()
	router.HideBanner = true

	router.POST("/v1/enrich", func(c echo.Context) error {
		var body EnrichRequest
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		request := model.NewAccessRequest(model.NewAccessResourceFromMap(body.Resource), body.AccessType)
		request.AccessTime = body.AccessTime

		e.Enrich(request)

		tags := model.GetRequestTags(request)
		if tags == nil {
			tags = []*model.TagForEval{}
		}

		return c.JSON(http.StatusOK, &EnrichResponse{
			ServiceName: e.ServiceName(),
			TagVersion:  e.GetServiceTagsVersion(),
			Tags:        tags,
		})
	})

	router.GET("/v1/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, &VersionResponse{
			ServiceName:         e.ServiceName(),
			ServiceTagsVersion:  e.GetServiceTagsVersion(),
			ResourceTrieVersion: e.GetResourceTrieVersion(),
		})
	})

	router.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	// Start server in goroutine since router.Start() blocks
	go func() {
		if err := router.Start(fmt.Sprintf(":%d", port)); err != nil && err != http.ErrServerClosed {
			router.Logger.Fatal(err)
		}
	}()

	return &Server{
		echo: router,
	}, nil
}

// Stop gracefully stops the Server by shutting down the Echo HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
