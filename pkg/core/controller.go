package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	worldUp   = mgl64.Vec3{0, 1, 0}
	worldDown = mgl64.Vec3{0, -1, 0}
)

// Advance 推进一个角色一个模拟步（客户端预测、客户端重放与服务器权威模拟共用）
//
// 1. 地面探测
// 2. 阻力 / 重力 / 限速加速
// 3. 跳跃
// 4. 扫掠-滑动（含上台阶），最多 MaxSlideIterations 次
// 5. 写回速度与着地状态
func Advance(world World, wish mgl64.Vec3, jump bool, state *CharacterState, position *mgl64.Vec3, c CharacterConstants, dt float64) {
	if dt <= 0 {
		return
	}
	v := state.Velocity
	pos := *position

	jumping := state.Jumping && v[1] > 0
	grounded := false
	if !jumping {
		if hit, ok := world.CastSphere(pos, c.Radius, worldDown, c.MaxGroundDistance); ok && isWalkable(hit.Normal, c.MaxSlopeDegrees) {
			grounded = true
			// 贴地：消除悬空间隙和指向地面的速度，不因斜面获得向上的速度
			if gap := hit.Distance - SkinWidth; gap > 0 {
				pos = pos.Add(worldDown.Mul(gap))
			}
			if hit.Penetration > 0 {
				pos = pos.Add(hit.Normal.Mul(hit.Penetration + SkinWidth))
			}
			v = clipGrounded(v, hit.Normal)
		}
	}

	var accel float64
	if grounded {
		v = v.Mul(math.Max(0, 1-c.GroundDrag*dt))
		accel = c.GroundAccel
	} else {
		h := math.Max(0, 1-c.AirDrag*dt)
		v[0] *= h
		v[2] *= h
		v[1] -= c.Gravity * dt
		accel = c.AirAccel
	}
	if l := wish.Len(); l > MoveEpsilon {
		v = v.Add(accelerate(wish.Mul(1/l), c.MoveSpeed, v, accel, dt))
	}

	if grounded && jump {
		v[1] = c.JumpStrength
		grounded = false
		jumping = true
	}

	moveAndSlide(world, &pos, &v, c, dt)

	state.Velocity = v
	state.Grounded = grounded
	state.Jumping = jumping && v[1] > 0
	*position = pos
}

// accelerate 限速加速：只补足沿期望方向缺少的速度
func accelerate(wishDir mgl64.Vec3, wishSpeed float64, v mgl64.Vec3, accel, dt float64) mgl64.Vec3 {
	addSpeed := wishSpeed - v.Dot(wishDir)
	if addSpeed <= 0 {
		return mgl64.Vec3{}
	}
	accelSpeed := math.Min(accel*dt*wishSpeed, addSpeed)
	return wishDir.Mul(accelSpeed)
}

func moveAndSlide(world World, pos, v *mgl64.Vec3, c CharacterConstants, dt float64) {
	remaining := v.Mul(dt)
	for i := 0; i < MaxSlideIterations; i++ {
		dist := remaining.Len()
		if dist < MoveEpsilon || v.Len() < MoveEpsilon {
			return
		}
		dir := remaining.Mul(1 / dist)

		hit, ok := world.CastSphere(*pos, c.Radius, dir, dist)
		if !ok {
			*pos = pos.Add(remaining)
			return
		}

		travel := math.Max(0, hit.Distance-SkinWidth)
		*pos = pos.Add(dir.Mul(travel))
		if hit.Penetration > 0 {
			*pos = pos.Add(hit.Normal.Mul(hit.Penetration + SkinWidth))
		}
		remaining = dir.Mul(dist - travel)

		if !isWalkable(hit.Normal, c.MaxSlopeDegrees) {
			if landed, rest, ok := tryStepUp(world, *pos, remaining, c); ok {
				*pos = landed
				remaining = rest
				continue
			}
		}
		remaining = clipVelocity(remaining, hit.Normal)
		if isWalkable(hit.Normal, c.MaxSlopeDegrees) {
			// 台阶边缘或斜坡：位置沿表面抬升，速度不向上
			*v = clipGrounded(*v, hit.Normal)
		} else {
			*v = clipVelocity(*v, hit.Normal)
		}
	}
}

// tryStepUp 上台阶：向上探测净空，抬高后向前探测至少一个半径的空间，再向下找可站立的台面。
// 成功时角色水平移动剩余位移并抬到台面高度，返回落点和剩余的竖直位移
func tryStepUp(world World, pos, remaining mgl64.Vec3, c CharacterConstants) (mgl64.Vec3, mgl64.Vec3, bool) {
	horiz := mgl64.Vec3{remaining[0], 0, remaining[2]}
	hl := horiz.Len()
	if hl < MoveEpsilon || c.MaxStepHeight <= 0 {
		return pos, remaining, false
	}

	rise := c.MaxStepHeight
	if hit, ok := world.CastSphere(pos, c.Radius, worldUp, rise); ok {
		rise = hit.Distance - SkinWidth
	}
	if rise < MoveEpsilon {
		return pos, remaining, false
	}
	raised := pos.Add(worldUp.Mul(rise))

	hdir := horiz.Mul(1 / hl)
	reach := math.Max(hl, c.Radius)
	if _, ok := world.CastSphere(raised, c.Radius, hdir, reach); ok {
		return pos, remaining, false
	}

	down, ok := world.CastSphere(raised.Add(hdir.Mul(reach)), c.Radius, worldDown, rise+c.MaxGroundDistance)
	if !ok || down.Penetration > 0 || down.Distance < SkinWidth {
		return pos, remaining, false
	}
	if !isWalkable(down.Normal, c.MaxSlopeDegrees) {
		return pos, remaining, false
	}
	ledgeY := raised[1] - (down.Distance - SkinWidth)
	if ledgeY-pos[1] > c.MaxStepHeight {
		return pos, remaining, false
	}

	landed := mgl64.Vec3{pos[0] + horiz[0], math.Max(ledgeY, pos[1]), pos[2] + horiz[2]}
	if hit, ok := world.CastSphere(landed, c.Radius, worldDown, SkinWidth); ok && hit.Penetration > 0 {
		return pos, remaining, false
	}
	return landed, mgl64.Vec3{0, remaining[1], 0}, true
}

// clipVelocity 去掉指向表面的法向分量
func clipVelocity(v, n mgl64.Vec3) mgl64.Vec3 {
	if d := v.Dot(n); d < 0 {
		return v.Sub(n.Mul(d))
	}
	return v
}

// clipGrounded 去掉法向分量后竖直速度不超过原值与 0 的较大者
func clipGrounded(v, n mgl64.Vec3) mgl64.Vec3 {
	vy := v[1]
	v = clipVelocity(v, n)
	v[1] = math.Min(v[1], math.Max(vy, 0))
	return v
}

// isWalkable 法线与竖直方向夹角小于最大坡度
func isWalkable(n mgl64.Vec3, maxSlopeDegrees float64) bool {
	return n[1] > math.Cos(mgl64.DegToRad(maxSlopeDegrees))
}
