// internal/pkg/bootstrap/nacos.go
package bootstrap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"gopkg.in/yaml.v3"

	"vertex/internal/pkg/logger"
)

var nacosConfigClient config_client.IConfigClient

// StartPricingWatch 连接 Nacos 配置中心，拉取计价配置段并持续监听变更。
// 配置中心不可用不是致命错误：本地 YAML 中的计价段照常生效。
func StartPricingWatch(cfg *Config) error {
	nc := cfg.Infra.Nacos
	if !nc.Enabled {
		return nil
	}

	var serverConfigs []constant.ServerConfig
	for _, addr := range strings.Split(nc.ServerAddrs, ",") {
		parts := strings.Split(strings.TrimSpace(addr), ":")
		if len(parts) != 2 {
			return fmt.Errorf("invalid nacos address format: %s", addr)
		}
		port, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid port in nacos address: %s", parts[1])
		}
		serverConfigs = append(serverConfigs, *constant.NewServerConfig(parts[0], port))
	}

	clientConfig := *constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir("/tmp/nacos/log"),
		constant.WithCacheDir("/tmp/nacos/cache"),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(nc.Namespace),
	)

	client, err := clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  &clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return fmt.Errorf("create nacos config client: %w", err)
	}
	nacosConfigClient = client

	// 启动时先拉一次全量
	if content, err := client.GetConfig(vo.ConfigParam{DataId: nc.DataID, Group: nc.Group}); err == nil && content != "" {
		applyPricingContent(content)
	} else if err != nil {
		logger.Logger.Warn().Err(err).Msg("initial pricing config fetch failed, using local values")
	}

	return client.ListenConfig(vo.ConfigParam{
		DataId: nc.DataID,
		Group:  nc.Group,
		OnChange: func(namespace, group, dataId, data string) {
			applyPricingContent(data)
		},
	})
}

func applyPricingContent(content string) {
	var p PricingSection
	if err := yaml.Unmarshal([]byte(content), &p); err != nil {
		logger.Logger.Error().Err(err).Msg("malformed pricing config from config center, keeping current values")
		return
	}
	SwapPricing(p)
	logger.Logger.Info().
		Float64("tax_rate_percent", p.TaxRatePercent).
		Int64("shipping_rate", p.ShippingRate).
		Int64("free_shipping_threshold", p.FreeShippingThreshold).
		Msg("pricing config reloaded from config center")
}

func closeNacos() {
	if nacosConfigClient != nil {
		nacosConfigClient.CloseClient()
	}
}
