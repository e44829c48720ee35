package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Hit 一次形状扫掠的命中结果
type Hit struct {
	Distance    float64    // 沿扫掠方向移动的距离
	Normal      mgl64.Vec3 // 命中表面法线（指向角色一侧，已归一化）
	Penetration float64    // 起点已经重叠时的穿透深度，否则为 0
}

// World 静态碰撞几何查询
type World interface {
	// CastSphere 沿 dir 扫掠半径为 radius 的球，最多 maxDist
	CastSphere(origin mgl64.Vec3, radius float64, dir mgl64.Vec3, maxDist float64) (Hit, bool)
}

// Shape 可被球体扫掠的静态碰撞体
type Shape interface {
	sweepSphere(origin mgl64.Vec3, radius float64, dir mgl64.Vec3, maxDist float64) (Hit, bool)
}

// StaticWorld 由一组静态碰撞体组成的世界
type StaticWorld struct {
	Shapes []Shape
}

// NewStaticWorld 创建静态世界
func NewStaticWorld(shapes ...Shape) *StaticWorld {
	return &StaticWorld{Shapes: shapes}
}

// Add 添加碰撞体
func (w *StaticWorld) Add(shapes ...Shape) {
	w.Shapes = append(w.Shapes, shapes...)
}

// CastSphere 返回最近的命中；起点重叠时距离为 0，取穿透最深者
func (w *StaticWorld) CastSphere(origin mgl64.Vec3, radius float64, dir mgl64.Vec3, maxDist float64) (Hit, bool) {
	l := dir.Len()
	if l < MoveEpsilon || maxDist < 0 {
		return Hit{}, false
	}
	dir = dir.Mul(1 / l)

	var best Hit
	found := false
	for _, s := range w.Shapes {
		hit, ok := s.sweepSphere(origin, radius, dir, maxDist)
		if !ok {
			continue
		}
		if !found || hit.Distance < best.Distance ||
			(hit.Distance == best.Distance && hit.Penetration > best.Penetration) {
			best = hit
			found = true
		}
	}
	return best, found
}

// Box 轴对齐长方体
type Box struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// NewBox 以中心和完整尺寸创建长方体
func NewBox(center, size mgl64.Vec3) Box {
	half := size.Mul(0.5)
	return Box{Min: center.Sub(half), Max: center.Add(half)}
}

// Center 中心点
func (b Box) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Size 完整尺寸
func (b Box) Size() mgl64.Vec3 {
	return b.Max.Sub(b.Min)
}

func (b Box) closestPoint(p mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{
		mgl64.Clamp(p[0], b.Min[0], b.Max[0]),
		mgl64.Clamp(p[1], b.Min[1], b.Max[1]),
		mgl64.Clamp(p[2], b.Min[2], b.Max[2]),
	}
}

// 点在盒内时，沿穿透最浅的面推出
func (b Box) insideNormal(p mgl64.Vec3) (mgl64.Vec3, float64) {
	bestDepth := math.Inf(1)
	var n mgl64.Vec3
	for axis := 0; axis < 3; axis++ {
		if d := p[axis] - b.Min[axis]; d < bestDepth {
			bestDepth = d
			n = mgl64.Vec3{}
			n[axis] = -1
		}
		if d := b.Max[axis] - p[axis]; d < bestDepth {
			bestDepth = d
			n = mgl64.Vec3{}
			n[axis] = 1
		}
	}
	return n, bestDepth
}

// sweepSphere 球与长方体的闵可夫斯基和（圆角盒）求交：
// 3 个单轴扩展的盒、12 条棱柱、8 个角球
func (b Box) sweepSphere(origin mgl64.Vec3, radius float64, dir mgl64.Vec3, maxDist float64) (Hit, bool) {
	q := b.closestPoint(origin)
	if delta := origin.Sub(q); delta.Len() < radius {
		var n mgl64.Vec3
		var pen float64
		if d := delta.Len(); d > MoveEpsilon {
			n = delta.Mul(1 / d)
			pen = radius - d
		} else {
			var depth float64
			n, depth = b.insideNormal(origin)
			pen = radius + depth
		}
		return overlapHit(n, pen, dir)
	}

	t := math.Inf(1)
	for axis := 0; axis < 3; axis++ {
		grow := mgl64.Vec3{}
		grow[axis] = radius
		if ht, ok := rayAABB(origin, dir, b.Min.Sub(grow), b.Max.Add(grow)); ok && ht < t {
			t = ht
		}

		i, j := (axis+1)%3, (axis+2)%3
		for _, ci := range [2]float64{b.Min[i], b.Max[i]} {
			for _, cj := range [2]float64{b.Min[j], b.Max[j]} {
				if ht, ok := rayAxisCylinder(origin, dir, axis, ci, cj, radius, b.Min[axis], b.Max[axis]); ok && ht < t {
					t = ht
				}
			}
		}
	}
	for c := 0; c < 8; c++ {
		corner := b.Min
		for axis := 0; axis < 3; axis++ {
			if c&(1<<axis) != 0 {
				corner[axis] = b.Max[axis]
			}
		}
		if ht, ok := raySphere(origin, dir, corner, radius); ok && ht < t {
			t = ht
		}
	}

	if t > maxDist {
		return Hit{}, false
	}
	p := origin.Add(dir.Mul(t))
	return Hit{Distance: t, Normal: surfaceNormal(p, b.closestPoint(p), dir)}, true
}

// Cylinder 竖直圆柱
type Cylinder struct {
	Center     mgl64.Vec3
	Radius     float64
	HalfHeight float64
}

// NewCylinder 以中心、半径和完整高度创建圆柱
func NewCylinder(center mgl64.Vec3, radius, height float64) Cylinder {
	return Cylinder{Center: center, Radius: radius, HalfHeight: height / 2}
}

func (c Cylinder) closestPoint(p mgl64.Vec3) mgl64.Vec3 {
	dx, dz := p[0]-c.Center[0], p[2]-c.Center[2]
	if r := math.Hypot(dx, dz); r > c.Radius {
		dx, dz = dx*c.Radius/r, dz*c.Radius/r
	}
	return mgl64.Vec3{
		c.Center[0] + dx,
		mgl64.Clamp(p[1], c.Center[1]-c.HalfHeight, c.Center[1]+c.HalfHeight),
		c.Center[2] + dz,
	}
}

// sweepSphere 侧面用半径扩展的圆柱，顶/底面用平面圆盘；边缘圆环近似为两者之并
func (c Cylinder) sweepSphere(origin mgl64.Vec3, radius float64, dir mgl64.Vec3, maxDist float64) (Hit, bool) {
	q := c.closestPoint(origin)
	if delta := origin.Sub(q); delta.Len() < radius {
		if d := delta.Len(); d > MoveEpsilon {
			return overlapHit(delta.Mul(1/d), radius-d, dir)
		}
		dx, dz := origin[0]-c.Center[0], origin[2]-c.Center[2]
		r := math.Hypot(dx, dz)
		side := c.Radius - r
		up := c.Center[1] + c.HalfHeight - origin[1]
		down := origin[1] - (c.Center[1] - c.HalfHeight)
		switch {
		case up <= down && up <= side:
			return overlapHit(mgl64.Vec3{0, 1, 0}, radius+up, dir)
		case down <= side:
			return overlapHit(mgl64.Vec3{0, -1, 0}, radius+down, dir)
		case r > MoveEpsilon:
			return overlapHit(mgl64.Vec3{dx / r, 0, dz / r}, radius+side, dir)
		default:
			return overlapHit(mgl64.Vec3{1, 0, 0}, radius+side, dir)
		}
	}

	t := math.Inf(1)
	lo, hi := c.Center[1]-c.HalfHeight, c.Center[1]+c.HalfHeight
	if ht, ok := rayAxisCylinder(origin, dir, 1, c.Center[2], c.Center[0], c.Radius+radius, lo, hi); ok {
		t = ht
	}
	for _, capY := range [2]float64{hi + radius, lo - radius} {
		if math.Abs(dir[1]) < MoveEpsilon {
			break
		}
		ht := (capY - origin[1]) / dir[1]
		if ht < 0 || ht >= t {
			continue
		}
		p := origin.Add(dir.Mul(ht))
		if math.Hypot(p[0]-c.Center[0], p[2]-c.Center[2]) <= c.Radius {
			t = ht
		}
	}

	if t > maxDist {
		return Hit{}, false
	}
	p := origin.Add(dir.Mul(t))
	return Hit{Distance: t, Normal: surfaceNormal(p, c.closestPoint(p), dir)}, true
}

// overlapHit 起点重叠：向外移动时不算命中，否则距离为 0
func overlapHit(n mgl64.Vec3, penetration float64, dir mgl64.Vec3) (Hit, bool) {
	if n.Dot(dir) >= 0 {
		return Hit{}, false
	}
	return Hit{Distance: 0, Normal: n, Penetration: penetration}, true
}

func surfaceNormal(p, closest, dir mgl64.Vec3) mgl64.Vec3 {
	n := p.Sub(closest)
	if l := n.Len(); l > MoveEpsilon {
		return n.Mul(1 / l)
	}
	return dir.Mul(-1)
}

// rayAABB 射线与轴对齐盒求交（起点在盒外）
func rayAABB(o, d, lo, hi mgl64.Vec3) (float64, bool) {
	tmin, tmax := 0.0, math.Inf(1)
	for axis := 0; axis < 3; axis++ {
		if math.Abs(d[axis]) < 1e-12 {
			if o[axis] < lo[axis] || o[axis] > hi[axis] {
				return 0, false
			}
			continue
		}
		inv := 1 / d[axis]
		t1 := (lo[axis] - o[axis]) * inv
		t2 := (hi[axis] - o[axis]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

// rayAxisCylinder 射线与沿 axis 方向的有限圆柱侧面求交，
// 圆心在另外两个轴上的坐标为 (ci, cj)
func rayAxisCylinder(o, d mgl64.Vec3, axis int, ci, cj, r, lo, hi float64) (float64, bool) {
	i, j := (axis+1)%3, (axis+2)%3
	mi, mj := o[i]-ci, o[j]-cj
	a := d[i]*d[i] + d[j]*d[j]
	if a < 1e-12 {
		return 0, false
	}
	b := mi*d[i] + mj*d[j]
	c := mi*mi + mj*mj - r*r
	if c > 0 && b > 0 {
		return 0, false
	}
	disc := b*b - a*c
	if disc < 0 {
		return 0, false
	}
	t := (-b - math.Sqrt(disc)) / a
	if t < 0 {
		t = 0
	}
	if h := o[axis] + t*d[axis]; h < lo || h > hi {
		return 0, false
	}
	return t, true
}

// raySphere 射线（单位方向）与球求交
func raySphere(o, d, center mgl64.Vec3, r float64) (float64, bool) {
	m := o.Sub(center)
	b := m.Dot(d)
	c := m.Dot(m) - r*r
	if c > 0 && b > 0 {
		return 0, false
	}
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	t := -b - math.Sqrt(disc)
	if t < 0 {
		t = 0
	}
	return t, true
}
