//
//  Copyright © Manetu Inc. All rights reserved.
//

package config_test

import (
	"os"
	"testing"

	"github.com/manetu/tagenricher/pkg/enricher/config"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	config.ResetConfig()

	assert.True(t, config.VConfig.GetBool(config.DedupStrings))
	assert.True(t, config.VConfig.GetBool(config.DisableCacheIfServiceNotFound))
	assert.True(t, config.VConfig.GetBool(config.TagDeltaEnabled))
	assert.True(t, config.VConfig.GetBool(config.InPlaceTagUpdateEnabled))
	assert.Equal(t, "", config.VConfig.GetString(config.PolicyCacheDir))
}

func TestEnvOverride(t *testing.T) {
	_ = os.Setenv("MTE_TAG_DELTA_ENABLED", "false")
	_ = os.Setenv("MTE_POLICY_CACHE_DIR", "/tmp/tags")
	defer func() {
		_ = os.Unsetenv("MTE_TAG_DELTA_ENABLED")
		_ = os.Unsetenv("MTE_POLICY_CACHE_DIR")
	}()

	config.ResetConfig()

	assert.False(t, config.VConfig.GetBool(config.TagDeltaEnabled))
	assert.Equal(t, "/tmp/tags", config.VConfig.GetString(config.PolicyCacheDir))
}

func TestLoadTwiceIsIdempotent(t *testing.T) {
	config.ResetConfig()

	assert.Nil(t, config.Load())
	assert.Nil(t, config.Load())
}
