package profile

import "math"

// Trapezoid computes time-optimal trapezoidal trajectories between two
// states. It is stateless apart from the timing of the last calculation;
// callers feed back the returned state on the next tick, which lets the
// goal change mid-profile.
type Trapezoid struct {
	Constraints Constraints

	direction    float64
	endAccel     float64
	endFullSpeed float64
	endDecel     float64
}

func NewTrapezoid(c Constraints) *Trapezoid {
	return &Trapezoid{Constraints: c, direction: 1}
}

// Calculate returns the state t seconds along the profile from current to goal.
func (p *Trapezoid) Calculate(t float64, current, goal State) State {
	maxVel := p.Constraints.MaxVelocity
	maxAcc := p.Constraints.MaxAcceleration

	if math.Abs(current.Velocity) > maxVel {
		current.Velocity = math.Copysign(maxVel, current.Velocity)
	}

	// Direction comes from where the carriage would stop at full braking,
	// so a goal inside the stopping distance is overshot and approached
	// from the far side instead of braking harder than maxAcc.
	stop := current.Position + current.Velocity*math.Abs(current.Velocity)/(2*maxAcc)
	p.direction = 1
	if stop > goal.Position {
		p.direction = -1
	}
	cur := p.direct(current)
	g := p.direct(goal)

	// A profile with non-zero end velocities is a truncated full trapezoid;
	// extend it to rest at both ends, then plan the full one.
	cutoffBegin := cur.Velocity / maxAcc
	cutoffDistBegin := cutoffBegin * cutoffBegin * maxAcc / 2.0

	cutoffEnd := g.Velocity / maxAcc
	cutoffDistEnd := cutoffEnd * cutoffEnd * maxAcc / 2.0

	fullTrapezoidDist := cutoffDistBegin + (g.Position - cur.Position) + cutoffDistEnd
	accelerationTime := maxVel / maxAcc

	fullSpeedDist := fullTrapezoidDist - accelerationTime*accelerationTime*maxAcc
	if fullSpeedDist < 0 {
		// triangular: never reaches cruise velocity
		accelerationTime = math.Sqrt(fullTrapezoidDist / maxAcc)
		fullSpeedDist = 0
	}

	p.endAccel = accelerationTime - cutoffBegin
	p.endFullSpeed = p.endAccel + fullSpeedDist/maxVel
	p.endDecel = p.endFullSpeed + accelerationTime - cutoffEnd

	result := cur
	switch {
	case t < p.endAccel:
		result.Velocity += t * maxAcc
		result.Position += (cur.Velocity + t*maxAcc/2.0) * t
	case t < p.endFullSpeed:
		result.Velocity = maxVel
		result.Position += (cur.Velocity+p.endAccel*maxAcc/2.0)*p.endAccel + maxVel*(t-p.endAccel)
	case t <= p.endDecel:
		timeLeft := p.endDecel - t
		result.Velocity = g.Velocity + timeLeft*maxAcc
		result.Position = g.Position - (g.Velocity+timeLeft*maxAcc/2.0)*timeLeft
	default:
		result = g
	}

	return p.direct(result)
}

// TotalTime is the duration of the most recently calculated profile.
func (p *Trapezoid) TotalTime() float64 {
	return p.endDecel
}

// IsFinished reports whether t is past the end of the last calculated profile.
func (p *Trapezoid) IsFinished(t float64) bool {
	return t >= p.TotalTime()
}

// TimeLeftUntil estimates the time until the profile passes target.
func (p *Trapezoid) TimeLeftUntil(current State, target float64) float64 {
	position := current.Position * p.direction
	velocity := current.Velocity * p.direction
	maxVel := p.Constraints.MaxVelocity
	maxAcc := p.Constraints.MaxAcceleration

	endAccel := p.endAccel * p.direction
	endFullSpeed := p.endFullSpeed*p.direction - endAccel

	if target < position {
		endAccel = -endAccel
		endFullSpeed = -endFullSpeed
		velocity = -velocity
	}

	endAccel = math.Max(endAccel, 0)
	endFullSpeed = math.Max(endFullSpeed, 0)

	acceleration := maxAcc
	deceleration := -maxAcc

	distToTarget := math.Abs(target - position)
	if distToTarget < 1e-6 {
		return 0
	}

	accelDist := velocity*endAccel + 0.5*acceleration*endAccel*endAccel

	var decelVelocity float64
	if endAccel > 0 {
		decelVelocity = math.Sqrt(math.Abs(velocity*velocity + 2*acceleration*accelDist))
	} else {
		decelVelocity = velocity
	}

	fullSpeedDist := maxVel * endFullSpeed
	var decelDist float64

	if accelDist > distToTarget {
		accelDist = distToTarget
		fullSpeedDist = 0
		decelDist = 0
	} else if accelDist+fullSpeedDist > distToTarget {
		fullSpeedDist = distToTarget - accelDist
		decelDist = 0
	} else {
		decelDist = distToTarget - fullSpeedDist - accelDist
	}

	accelTime := (-velocity + math.Sqrt(math.Abs(velocity*velocity+2*acceleration*accelDist))) / acceleration
	decelTime := (-decelVelocity + math.Sqrt(math.Abs(decelVelocity*decelVelocity+2*deceleration*decelDist))) / deceleration
	fullSpeedTime := fullSpeedDist / maxVel

	return accelTime + fullSpeedTime + decelTime
}

func (p *Trapezoid) direct(in State) State {
	return State{Position: in.Position * p.direction, Velocity: in.Velocity * p.direction}
}
