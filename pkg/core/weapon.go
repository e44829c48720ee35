package core

import "time"

// WeaponConfig 武器数据（服务器下发给客户端）
type WeaponConfig struct {
	Tag          string `yaml:"tag" json:"tag"`
	Name         string `yaml:"name" json:"name"`
	FireRateMs   uint32 `yaml:"fire_rate_ms" json:"fire_rate_ms"`
	Damage       uint32 `yaml:"damage" json:"damage"`
	MagazineSize uint32 `yaml:"magazine_size" json:"magazine_size"`
	ReloadMs     uint32 `yaml:"reload_ms" json:"reload_ms"`
}

// DefaultWeapons 内置武器表
func DefaultWeapons() []WeaponConfig {
	return []WeaponConfig{
		{Tag: "rifle", Name: "Rifle", FireRateMs: 100, Damage: 12, MagazineSize: 30, ReloadMs: 1500},
		{Tag: "pistol", Name: "Pistol", FireRateMs: 250, Damage: 20, MagazineSize: 12, ReloadMs: 1000},
	}
}

// FindWeapon 按 tag 查找武器配置
func FindWeapon(configs []WeaponConfig, tag string) (WeaponConfig, bool) {
	for _, c := range configs {
		if c.Tag == tag {
			return c, true
		}
	}
	return WeaponConfig{}, false
}

// WeaponState 角色当前武器状态，只存在于服务器
type WeaponState struct {
	ConfigTag  string
	NextFireAt time.Duration // 模拟时间
	Ammo       uint32
}

// NewWeaponState 装备武器并装满弹匣
func NewWeaponState(cfg WeaponConfig) WeaponState {
	return WeaponState{ConfigTag: cfg.Tag, Ammo: cfg.MagazineSize}
}

// CanFire 冷却结束（含换弹）
func (w *WeaponState) CanFire(now time.Duration) bool {
	return now >= w.NextFireAt
}

// OnFire 记录一次开火；弹匣打空后自动换弹。MagazineSize 为 0 表示无限弹药
func (w *WeaponState) OnFire(now time.Duration, cfg WeaponConfig) {
	w.NextFireAt = now + time.Duration(cfg.FireRateMs)*time.Millisecond
	if cfg.MagazineSize == 0 {
		return
	}
	if w.Ammo > 0 {
		w.Ammo--
	}
	if w.Ammo == 0 {
		w.Ammo = cfg.MagazineSize
		w.NextFireAt = now + time.Duration(cfg.ReloadMs)*time.Millisecond
	}
}

// FireEvent 一次成功开火
type FireEvent struct {
	Tick    uint32   `json:"tick" msgpack:"tick"`
	Owner   ClientID `json:"owner" msgpack:"owner"`
	Weapon  string   `json:"weapon" msgpack:"weapon"`
	Damage  uint32   `json:"damage" msgpack:"damage"`
	Yaw     float64  `json:"yaw" msgpack:"yaw"`
	Pitch   float64  `json:"pitch" msgpack:"pitch"`
	AmmoRem uint32   `json:"ammo" msgpack:"ammo"`
}
