//
//  Copyright © Manetu Inc. All rights reserved.
//

package retriever

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/manetu/tagenricher/pkg/common"
	"github.com/manetu/tagenricher/pkg/enricher/model"
	"github.com/manetu/tagenricher/pkg/enricher/model/parsers"
	"github.com/spf13/viper"
)

// Options understood by the admin retriever.
const (
	// OptionAdminURL is the base URL of the admin service (required).
	OptionAdminURL = "adminURL"
	// OptionAdminTimeoutMs bounds one download request (default 30000).
	OptionAdminTimeoutMs = "adminTimeoutMs"
)

const defaultAdminTimeout = 30 * time.Second

func init() {
	Register("admin", func() Retriever { return &adminRetriever{} })
}

// adminRetriever polls the admin service's tag-download endpoint:
//
//	GET {adminURL}/service/tags/download/{serviceName}
//	    ?lastKnownVersion=N&lastActivationTime=T&pluginId=appId
//
// 304 means no change, 404 means the service has been deleted upstream.
type adminRetriever struct {
	serviceName string
	appID       string
	baseURL     string
	client      *http.Client
}

func (r *adminRetriever) SetServiceName(serviceName string) { r.serviceName = serviceName }

func (r *adminRetriever) SetServiceDef(serviceDef *model.ServiceDef) {}

func (r *adminRetriever) SetAppID(appID string) { r.appID = appID }

func (r *adminRetriever) SetPluginConfig(pluginConfig *viper.Viper) {}

func (r *adminRetriever) SetPluginContext(pluginContext map[string]interface{}) {}

func (r *adminRetriever) Init(options map[string]string) error {
	r.baseURL = options[OptionAdminURL]
	if r.baseURL == "" {
		return common.NewError(common.ReasonIO, "admin retriever requires the adminURL option")
	}

	timeout := defaultAdminTimeout
	if v := options[OptionAdminTimeoutMs]; v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return common.WrapError(common.ReasonParse, err, "invalid adminTimeoutMs")
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	r.client = &http.Client{Timeout: timeout}

	return nil
}

func (r *adminRetriever) RetrieveTags(lastKnownVersion int64, lastActivationTimeMs int64) (*model.ServiceTags, error) {
	query := url.Values{}
	query.Set("lastKnownVersion", strconv.FormatInt(lastKnownVersion, 10))
	query.Set("lastActivationTime", strconv.FormatInt(lastActivationTimeMs, 10))
	query.Set("pluginId", r.appID)

	target := fmt.Sprintf("%s/service/tags/download/%s?%s", r.baseURL, url.PathEscape(r.serviceName), query.Encode())

	response, err := r.client.Get(target)
	if err != nil {
		return nil, common.WrapError(common.ReasonIO, err, "error downloading service-tags")
	}
	defer func() { _ = response.Body.Close() }()

	switch response.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusNotModified, http.StatusNoContent:
		return nil, nil
	case http.StatusNotFound:
		return nil, common.NewErrorf(common.ReasonServiceNotFound, "service %s not found on admin", r.serviceName)
	default:
		return nil, common.NewErrorf(common.ReasonIO, "unexpected admin response %d", response.StatusCode)
	}

	serviceTags, err := parsers.ParseServiceTags(response.Body)
	if err != nil {
		return nil, common.WrapError(common.ReasonParse, err, "error decoding service-tags response")
	}

	return serviceTags, nil
}
