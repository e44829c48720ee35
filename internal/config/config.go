package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"marsarena/pkg/core"

	"gopkg.in/yaml.v3"
)

// Config 服务器与客户端共享的调参文件
type Config struct {
	TickRateHz    int                 `yaml:"tick_rate_hz" json:"tick_rate_hz,omitempty" jsonschema:"minimum=1,maximum=1024"`
	Input         InputConfig         `yaml:"input" json:"input,omitempty"`
	Snapshot      SnapshotConfig      `yaml:"snapshot" json:"snapshot,omitempty"`
	Character     CharacterConfig     `yaml:"character" json:"character,omitempty"`
	Smoothing     SmoothingConfig     `yaml:"smoothing" json:"smoothing,omitempty"`
	Network       NetworkConfig       `yaml:"network" json:"network,omitempty"`
	Weapons       []core.WeaponConfig `yaml:"weapons" json:"weapons,omitempty"`
	DefaultWeapon string              `yaml:"default_weapon" json:"default_weapon,omitempty"`
}

// InputConfig 输入缓冲与冗余发送
type InputConfig struct {
	BufferMin      int     `yaml:"buffer_min" json:"buffer_min,omitempty" jsonschema:"minimum=0"`
	BufferMax      int     `yaml:"buffer_max" json:"buffer_max,omitempty" jsonschema:"minimum=1"`
	RedundantSends int     `yaml:"redundant_sends" json:"redundant_sends,omitempty" jsonschema:"minimum=1,maximum=2"`
	HistorySeconds float64 `yaml:"history_seconds" json:"history_seconds,omitempty" jsonschema:"minimum=0"`
}

// SnapshotConfig 快照历史窗口
type SnapshotConfig struct {
	HistoryMs int `yaml:"history_ms" json:"history_ms,omitempty" jsonschema:"minimum=1"`
}

// CharacterConfig 角色参数
type CharacterConfig struct {
	MoveSpeed         float64 `yaml:"move_speed" json:"move_speed,omitempty"`
	GroundAccel       float64 `yaml:"ground_accel" json:"ground_accel,omitempty"`
	AirAccel          float64 `yaml:"air_accel" json:"air_accel,omitempty"`
	GroundDrag        float64 `yaml:"ground_drag" json:"ground_drag,omitempty"`
	AirDrag           float64 `yaml:"air_drag" json:"air_drag,omitempty"`
	JumpStrength      float64 `yaml:"jump_strength" json:"jump_strength,omitempty"`
	Gravity           float64 `yaml:"gravity" json:"gravity,omitempty"`
	Radius            float64 `yaml:"radius" json:"radius,omitempty"`
	MaxGroundDistance float64 `yaml:"max_ground_distance" json:"max_ground_distance,omitempty"`
	MaxStepHeight     float64 `yaml:"max_step_height" json:"max_step_height,omitempty"`
	MaxSlopeDegrees   float64 `yaml:"max_slope_degrees" json:"max_slope_degrees,omitempty" jsonschema:"maximum=89"`
}

// SmoothingConfig 纠错视觉偏移的衰减
type SmoothingConfig struct {
	MaxOffset       float64 `yaml:"max_offset" json:"max_offset,omitempty"`
	CorrectionSpeed float64 `yaml:"correction_speed" json:"correction_speed,omitempty"`
}

// NetworkConfig 传输层参数
type NetworkConfig struct {
	InboundRatePerSec int `yaml:"inbound_rate_per_sec" json:"inbound_rate_per_sec,omitempty" jsonschema:"minimum=1"`
	InboundBurst      int `yaml:"inbound_burst" json:"inbound_burst,omitempty" jsonschema:"minimum=1"`
	MaxClients        int `yaml:"max_clients" json:"max_clients,omitempty" jsonschema:"minimum=1"`
	MetricsLogSeconds int `yaml:"metrics_log_seconds" json:"metrics_log_seconds,omitempty" jsonschema:"minimum=1"`
}

// Defaults 默认配置
func Defaults() Config {
	c := core.DefaultConstants()
	return Config{
		TickRateHz: core.TickRateHz,
		Input: InputConfig{
			BufferMin:      5,
			BufferMax:      10,
			RedundantSends: 2,
			HistorySeconds: 3,
		},
		Snapshot: SnapshotConfig{HistoryMs: 1000},
		Character: CharacterConfig{
			MoveSpeed:         c.MoveSpeed,
			GroundAccel:       c.GroundAccel,
			AirAccel:          c.AirAccel,
			GroundDrag:        c.GroundDrag,
			AirDrag:           c.AirDrag,
			JumpStrength:      c.JumpStrength,
			Gravity:           c.Gravity,
			Radius:            c.Radius,
			MaxGroundDistance: c.MaxGroundDistance,
			MaxStepHeight:     c.MaxStepHeight,
			MaxSlopeDegrees:   c.MaxSlopeDegrees,
		},
		Smoothing: SmoothingConfig{MaxOffset: 0.9, CorrectionSpeed: 20},
		Network: NetworkConfig{
			InboundRatePerSec: 4 * core.TickRateHz,
			InboundBurst:      32,
			MaxClients:        32,
			MetricsLogSeconds: 5,
		},
		Weapons:       core.DefaultWeapons(),
		DefaultWeapon: "rifle",
	}
}

// Load 读取 YAML 配置：先按 JSON Schema 校验，再覆盖到默认值上
func Load(path string) (Config, error) {
	cfg := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("读取配置失败: %w", err)
	}
	return Parse(raw)
}

// Parse 解析并校验 YAML 内容
func Parse(raw []byte) (Config, error) {
	cfg := Defaults()
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, nil
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return cfg, fmt.Errorf("config.yaml: %w", err)
	}
	if err := validateDocument(doc); err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// 转成 JSON 文档后交给 schema 校验
func validateDocument(doc any) error {
	if doc == nil {
		return nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config.yaml: 无法转换为 JSON: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("config.yaml: %w", err)
	}
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ErrInvalidConfig 配置不合法
var ErrInvalidConfig = errors.New("配置不合法")

// Validate 检查 schema 表达不了的跨字段约束
func (c Config) Validate() error {
	switch {
	case c.TickRateHz <= 0:
		return fmt.Errorf("%w: tick_rate_hz 必须为正", ErrInvalidConfig)
	case c.Input.BufferMax < 1:
		return fmt.Errorf("%w: input.buffer_max 必须 >= 1", ErrInvalidConfig)
	case c.Input.BufferMin > c.Input.BufferMax:
		return fmt.Errorf("%w: input.buffer_min(%d) > input.buffer_max(%d)", ErrInvalidConfig, c.Input.BufferMin, c.Input.BufferMax)
	case c.Input.RedundantSends < 1 || c.Input.RedundantSends > 2:
		return fmt.Errorf("%w: input.redundant_sends 必须为 1 或 2", ErrInvalidConfig)
	case c.Character.Radius <= 0:
		return fmt.Errorf("%w: character.radius 必须为正", ErrInvalidConfig)
	}
	if c.DefaultWeapon != "" {
		if _, ok := core.FindWeapon(c.Weapons, c.DefaultWeapon); !ok {
			return fmt.Errorf("%w: default_weapon %q 不在 weapons 中", ErrInvalidConfig, c.DefaultWeapon)
		}
	}
	seen := make(map[string]bool, len(c.Weapons))
	for _, w := range c.Weapons {
		if seen[w.Tag] {
			return fmt.Errorf("%w: 重复的武器 tag %q", ErrInvalidConfig, w.Tag)
		}
		seen[w.Tag] = true
	}
	return nil
}

// Constants 转换为角色常量
func (c Config) Constants() core.CharacterConstants {
	ch := c.Character
	return core.CharacterConstants{
		MoveSpeed:         ch.MoveSpeed,
		GroundAccel:       ch.GroundAccel,
		AirAccel:          ch.AirAccel,
		GroundDrag:        ch.GroundDrag,
		AirDrag:           ch.AirDrag,
		JumpStrength:      ch.JumpStrength,
		Gravity:           ch.Gravity,
		Radius:            ch.Radius,
		MaxGroundDistance: ch.MaxGroundDistance,
		MaxStepHeight:     ch.MaxStepHeight,
		MaxSlopeDegrees:   ch.MaxSlopeDegrees,
	}
}

// TickDuration 一个 tick 的时长
func (c Config) TickDuration() time.Duration {
	return time.Second / time.Duration(c.TickRateHz)
}

// DeltaSeconds 一个 tick 的秒数
func (c Config) DeltaSeconds() float64 {
	return 1 / float64(c.TickRateHz)
}

// HistoryTicks 客户端输入历史保留的 tick 数
func (c Config) HistoryTicks() uint32 {
	return uint32(c.Input.HistorySeconds * float64(c.TickRateHz))
}

// SnapshotWindow 快照历史窗口
func (c Config) SnapshotWindow() time.Duration {
	return time.Duration(c.Snapshot.HistoryMs) * time.Millisecond
}

// MetricsInterval 网络统计日志间隔
func (c Config) MetricsInterval() time.Duration {
	return time.Duration(c.Network.MetricsLogSeconds) * time.Second
}
