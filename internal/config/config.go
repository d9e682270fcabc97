package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BetaCatPro/ordertrack-ws/pkg/types"
)

// Default 返回默认配置（默认订单与固定重连间隔）
func Default() *types.Config {
	cfg := &types.Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load 读取 YAML 配置文件，支持 ${VAR} 环境变量
func Load(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg types.Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// LoadAndValidate 加载配置文件（路径为空时从零值开始），依次应用覆盖项、默认值并校验
func LoadAndValidate(path string, overrides ...func(*types.Config)) (*types.Config, error) {
	cfg := &types.Config{}
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	for _, override := range overrides {
		override(cfg)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
