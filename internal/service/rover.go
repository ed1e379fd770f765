package service

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/brainstem-ai/brainstem/internal/domain/guard"
	"github.com/brainstem-ai/brainstem/internal/domain/tool"
)

// Rover is the in-memory pose state behind the simulated hardware
// tools. It stands in for a physical chassis on nodes that have none,
// so the full invocation path stays exercisable on any host.
type Rover struct {
	mu       sync.Mutex
	x, y     float64 // meters from origin
	heading  float64 // degrees clockwise from north, [0, 360)
	odometer float64 // meters traveled
	battery  float64 // percent remaining
	said     []string
}

// NewRover returns a rover at the origin facing north with a full
// battery.
func NewRover() *Rover {
	return &Rover{battery: 100}
}

// Pose returns the current position and heading.
func (r *Rover) Pose() (x, y, heading float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.x, r.y, r.heading
}

// drive moves or turns the chassis. forward/backward interpret distance
// as meters along the current heading; left/right interpret it as
// degrees of rotation.
func (r *Rover) drive(direction string, distance float64) (string, error) {
	if distance < 0 {
		return "", fmt.Errorf("distance must be non-negative, got %v", distance)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch direction {
	case "forward", "backward":
		sign := 1.0
		if direction == "backward" {
			sign = -1.0
		}
		rad := r.heading * math.Pi / 180
		r.x += sign * distance * math.Sin(rad)
		r.y += sign * distance * math.Cos(rad)
		r.odometer += distance
		r.drain(distance * 0.5)
	case "left":
		r.heading = normalizeHeading(r.heading - distance)
		r.drain(distance * 0.01)
	case "right":
		r.heading = normalizeHeading(r.heading + distance)
		r.drain(distance * 0.01)
	default:
		return "", fmt.Errorf("unknown direction %q", direction)
	}

	return fmt.Sprintf("pose: x=%.2fm y=%.2fm heading=%.1f°", r.x, r.y, r.heading), nil
}

// sense reports the simulated telemetry snapshot.
func (r *Rover) sense() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf(
		"x=%.2fm y=%.2fm heading=%.1f° odometer=%.2fm battery=%.1f%%",
		r.x, r.y, r.heading, r.odometer, r.battery,
	)
}

// look describes the simulated camera view toward the given direction,
// or straight ahead when direction is empty.
func (r *Rover) look(direction string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	heading := r.heading
	switch direction {
	case "", "ahead":
	case "left":
		heading = normalizeHeading(heading - 90)
	case "right":
		heading = normalizeHeading(heading + 90)
	case "behind":
		heading = normalizeHeading(heading + 180)
	default:
		return "", fmt.Errorf("unknown direction %q", direction)
	}

	// Deterministic scene per quadrant so tests and demos are stable.
	scenes := [4]string{
		"open ground, horizon clear",
		"rock field ahead, passable on the left",
		"gentle slope descending",
		"tall grass, visibility reduced",
	}
	quadrant := int(heading/90) % 4
	return fmt.Sprintf("camera at %.1f°: %s", heading, scenes[quadrant]), nil
}

// speak records an utterance and confirms it.
func (r *Rover) speak(text string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.said = append(r.said, text)
	return fmt.Sprintf("spoke: %q", text)
}

// Utterances returns everything the rover has spoken, oldest first.
func (r *Rover) Utterances() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.said))
	copy(out, r.said)
	return out
}

func (r *Rover) drain(amount float64) {
	r.battery = math.Max(0, r.battery-amount)
}

func normalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// roverTools exposes the simulated chassis as four registry tools.
func roverTools(r *Rover) []tool.Definition {
	return []tool.Definition{
		{
			Spec: tool.Spec{
				Name:        "drive",
				Description: "Move the chassis forward/backward by meters or turn left/right by degrees.",
				InputSchema: tool.ObjectSchema(map[string]tool.Property{
					"direction": {Type: "string", Description: "One of forward, backward, left, right.", Enum: []string{"forward", "backward", "left", "right"}},
					"distance":  tool.NumberProp("Meters to move, or degrees to turn."),
				}, "direction", "distance"),
				BaseRisk: guard.RiskMedium,
			},
			Handler: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
				msg, err := r.drive(stringArg(args, "direction"), numberArg(args, "distance"))
				if err != nil {
					return tool.ErrorResult("drive: %v", err), nil
				}
				return tool.TextResult(msg), nil
			},
		},
		{
			Spec: tool.Spec{
				Name:        "sense",
				Description: "Read the current pose, odometer, and battery telemetry.",
				InputSchema: tool.ObjectSchema(map[string]tool.Property{}),
			},
			Handler: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
				return tool.TextResult(r.sense()), nil
			},
		},
		{
			Spec: tool.Spec{
				Name:        "look",
				Description: "Describe the simulated camera view ahead, left, right, or behind.",
				InputSchema: tool.ObjectSchema(map[string]tool.Property{
					"direction": {Type: "string", Description: "Optional view direction.", Enum: []string{"ahead", "left", "right", "behind"}},
				}),
			},
			Handler: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
				msg, err := r.look(stringArg(args, "direction"))
				if err != nil {
					return tool.ErrorResult("look: %v", err), nil
				}
				return tool.TextResult(msg), nil
			},
		},
		{
			Spec: tool.Spec{
				Name:        "speak",
				Description: "Speak a phrase through the chassis speaker.",
				InputSchema: tool.ObjectSchema(map[string]tool.Property{
					"text": tool.StringProp("Phrase to speak."),
				}, "text"),
			},
			Handler: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
				return tool.TextResult(r.speak(stringArg(args, "text"))), nil
			},
		},
	}
}
