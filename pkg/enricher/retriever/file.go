//
//  Copyright © Manetu Inc. All rights reserved.
//

package retriever

import (
	"os"

	"github.com/manetu/tagenricher/internal/logging"
	"github.com/manetu/tagenricher/pkg/common"
	"github.com/manetu/tagenricher/pkg/enricher/model"
	"github.com/manetu/tagenricher/pkg/enricher/model/parsers"
	"github.com/spf13/viper"
)

var logger = logging.GetLogger("tagenricher.retriever")

// OptionServiceTagsFileName selects the source file for the file retriever.
const OptionServiceTagsFileName = "serviceTagsFileName"

func init() {
	Register("file", func() Retriever { return &fileRetriever{} })
}

// fileRetriever serves snapshots from a local service-tags JSON document.
// It reports "no change" while the file's modification time predates the
// refresher's last activation, so repeated polls stay cheap.
type fileRetriever struct {
	serviceName string
	fileName    string
}

func (r *fileRetriever) SetServiceName(serviceName string) { r.serviceName = serviceName }

func (r *fileRetriever) SetServiceDef(serviceDef *model.ServiceDef) {}

func (r *fileRetriever) SetAppID(appID string) {}

func (r *fileRetriever) SetPluginConfig(pluginConfig *viper.Viper) {}

func (r *fileRetriever) SetPluginContext(pluginContext map[string]interface{}) {}

func (r *fileRetriever) Init(options map[string]string) error {
	r.fileName = options[OptionServiceTagsFileName]
	if r.fileName == "" {
		return common.NewError(common.ReasonIO, "file retriever requires the serviceTagsFileName option")
	}

	return nil
}

func (r *fileRetriever) RetrieveTags(lastKnownVersion int64, lastActivationTimeMs int64) (*model.ServiceTags, error) {
	info, err := os.Stat(r.fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.WrapError(common.ReasonServiceNotFound, err, "service-tags source file is gone")
		}
		return nil, common.WrapError(common.ReasonIO, err, "error examining service-tags source file")
	}

	if lastKnownVersion >= 0 && info.ModTime().UnixMilli() <= lastActivationTimeMs {
		return nil, nil
	}

	serviceTags, err := parsers.ParseServiceTagsFile(r.fileName)
	if err != nil {
		return nil, common.WrapError(common.ReasonParse, err, "error loading service-tags source file")
	}

	if serviceTags.TagVersion <= lastKnownVersion {
		return nil, nil
	}

	logger.SysDebugf("file retriever serving %s at version %d", r.fileName, serviceTags.TagVersion)

	return serviceTags, nil
}
