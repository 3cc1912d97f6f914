//
//  Copyright © Manetu Inc. All rights reserved.
//

package generic_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/manetu/tagenricher/pkg/enricher"
	"github.com/manetu/tagenricher/pkg/enricher/config"
	"github.com/manetu/tagenricher/pkg/enricher/model"
	"github.com/manetu/tagenricher/pkg/enrichpoint/generic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.Nil(t, listener.Close())

	return port
}

func waitForServer(t *testing.T, base string) {
	t.Helper()
	for i := 0; i < 50; i++ {
		response, err := http.Get(base + "/healthz")
		if err == nil {
			_ = response.Body.Close()
			if response.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("server did not come up")
}

func TestEnrichEndpoint(t *testing.T) {
	config.ResetConfig()

	serviceDef := &model.ServiceDef{
		Name: "hive",
		Resources: []model.ResourceDef{
			{Name: "database", Level: 10},
			{Name: "table", Parent: "database", Level: 20},
			{Name: "column", Parent: "table", Level: 30},
		},
	}

	e, err := enricher.New("dev_hive", "hiveServer2", serviceDef, nil)
	require.Nil(t, err)
	require.Nil(t, e.Init())

	e.SetServiceTags(&model.ServiceTags{
		ServiceName: "dev_hive",
		TagVersion:  1,
		Tags: map[int64]*model.Tag{
			1: {ID: 1, Type: "PII"},
		},
		ServiceResources: []*model.ServiceResource{
			{
				ID:                1,
				ResourceSignature: "sig-1",
				ResourceElements: map[string]*model.PolicyResource{
					"database": {Values: []string{"sales"}},
				},
			},
		},
		ResourceToTagIds: map[int64][]int64{1: {1}},
	})

	port := freePort(t)
	server, err := generic.CreateServer(e, port)
	require.Nil(t, err)
	defer func() { _ = server.Stop(context.Background()) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitForServer(t, base)

	body := `{"resource": {"database": "sales", "table": "orders"}, "accessType": "select"}`
	response, err := http.Post(base+"/v1/enrich", "application/json", strings.NewReader(body))
	require.Nil(t, err)
	defer func() { _ = response.Body.Close() }()
	require.Equal(t, http.StatusOK, response.StatusCode)

	var enrichResponse generic.EnrichResponse
	require.Nil(t, json.NewDecoder(response.Body).Decode(&enrichResponse))

	assert.Equal(t, "dev_hive", enrichResponse.ServiceName)
	assert.EqualValues(t, 1, enrichResponse.TagVersion)
	require.Len(t, enrichResponse.Tags, 1)
	assert.Equal(t, "PII", enrichResponse.Tags[0].Tag.Type)
	assert.Equal(t, model.MatchTypeAncestor, enrichResponse.Tags[0].MatchType)

	versionResponse, err := http.Get(base + "/v1/version")
	require.Nil(t, err)
	defer func() { _ = versionResponse.Body.Close() }()

	var version generic.VersionResponse
	require.Nil(t, json.NewDecoder(versionResponse.Body).Decode(&version))
	assert.EqualValues(t, 1, version.ServiceTagsVersion)
	assert.EqualValues(t, 1, version.ResourceTrieVersion)
}
