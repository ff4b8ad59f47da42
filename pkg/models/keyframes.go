package models

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Tolerance is the absolute epsilon used for every "effectively equal" decision:
// keyframe simplification, the filmback aspect cross-check and round-trip checks.
const Tolerance = 2.220446049250313e-16 * 100000

// FloatEqual reports whether x and y are equal within Tolerance.
func FloatEqual(x, y float64) bool {
	if x == y {
		return true
	}
	return math.Abs(x-y) < Tolerance
}

// KeyframeKind tags how a Keyframes value is stored.
type KeyframeKind int

const (
	// KindAnimated stores sparse per-frame samples.
	KindAnimated KeyframeKind = iota
	// KindStatic stores one value for all time.
	KindStatic
)

func (k KeyframeKind) String() string {
	if k == KindStatic {
		return "static"
	}
	return "animated"
}

// Keyframe is one frame/value pair.
type Keyframe struct {
	Frame int     `json:"frame"`
	Value float64 `json:"value"`
}

// Keyframes is a single animatable scalar camera parameter. It is either static
// (one constant) or animated (samples at a sparse set of integer frames).
//
// Animated samples are indexed by a sorted frame slice so closest-frame lookups
// are a binary search.
type Keyframes struct {
	kind     KeyframeKind
	constant float64
	hasValue bool

	samples map[int]float64
	frames  []int

	startFrame int
	endFrame   int
	length     int
}

// NewKeyframes returns an empty series of the given kind.
func NewKeyframes(kind KeyframeKind) *Keyframes {
	k := &Keyframes{kind: kind}
	if kind == KindAnimated {
		k.samples = make(map[int]float64)
	}
	return k
}

// NewStaticKeyframes returns a static series holding v.
func NewStaticKeyframes(v float64) *Keyframes {
	k := NewKeyframes(KindStatic)
	k.Set(0, v)
	return k
}

// NewAnimatedKeyframes returns an animated series with the given samples.
func NewAnimatedKeyframes(keys ...Keyframe) *Keyframes {
	k := NewKeyframes(KindAnimated)
	for _, kf := range keys {
		k.Set(kf.Frame, kf.Value)
	}
	return k
}

// Kind returns the storage tag.
func (k *Keyframes) Kind() KeyframeKind { return k.kind }

// IsStatic reports whether the series holds one value for all time.
func (k *Keyframes) IsStatic() bool { return k.kind == KindStatic }

// Len is the number of stored samples; 1 for a static series with a value.
func (k *Keyframes) Len() int { return k.length }

// StartFrame is the first sample frame (0 for static series).
func (k *Keyframes) StartFrame() int { return k.startFrame }

// EndFrame is the last sample frame (0 for static series).
func (k *Keyframes) EndFrame() int { return k.endFrame }

// Value returns the value at frame. Animated series fall back to the closest
// stored frame. ok is false only when nothing has been set.
func (k *Keyframes) Value(frame int) (float64, bool) {
	if k.kind == KindStatic {
		return k.constant, k.hasValue
	}
	if v, ok := k.samples[frame]; ok {
		return v, true
	}
	closest, ok := k.ClosestFrame(frame)
	if !ok {
		return 0, false
	}
	return k.samples[closest], true
}

// ClosestFrame returns the stored frame nearest to frame. The candidates are the
// largest stored frame not after frame and the smallest stored frame not before
// it; on equal distance the earlier one wins.
func (k *Keyframes) ClosestFrame(frame int) (int, bool) {
	if len(k.frames) == 0 {
		return 0, false
	}
	i := sort.SearchInts(k.frames, frame)
	if i < len(k.frames) && k.frames[i] == frame {
		return frame, true
	}
	if i == 0 {
		return k.frames[0], true
	}
	if i == len(k.frames) {
		return k.frames[len(k.frames)-1], true
	}
	before, after := k.frames[i-1], k.frames[i]
	if after-frame < frame-before {
		return after, true
	}
	return before, true
}

// Set stores v at frame. On a static series it replaces the constant and resets
// the frame window; setting an identical sample on an animated series is a no-op.
func (k *Keyframes) Set(frame int, v float64) {
	if k.kind == KindStatic {
		k.constant = v
		k.hasValue = true
		k.length = 1
		k.startFrame = 0
		k.endFrame = 0
		return
	}

	if k.samples == nil {
		k.samples = make(map[int]float64)
	}
	if old, ok := k.samples[frame]; ok {
		if old != v {
			k.samples[frame] = v
		}
		return
	}

	k.samples[frame] = v
	i := sort.SearchInts(k.frames, frame)
	k.frames = append(k.frames, 0)
	copy(k.frames[i+1:], k.frames[i:])
	k.frames[i] = frame

	k.length = len(k.frames)
	k.startFrame = k.frames[0]
	k.endFrame = k.frames[len(k.frames)-1]
}

// Keys returns every sample in ascending frame order. A static series yields a
// single pseudo-sample at frame 0.
func (k *Keyframes) Keys() []Keyframe {
	if k.kind == KindStatic {
		if !k.hasValue {
			return nil
		}
		return []Keyframe{{Frame: k.startFrame, Value: k.constant}}
	}
	keys := make([]Keyframe, 0, len(k.frames))
	for _, f := range k.frames {
		keys = append(keys, Keyframe{Frame: f, Value: k.samples[f]})
	}
	return keys
}

// Frames returns the stored frames in ascending order.
func (k *Keyframes) Frames() []int {
	if k.kind == KindStatic {
		if !k.hasValue {
			return nil
		}
		return []int{k.startFrame}
	}
	return append([]int(nil), k.frames...)
}

// Values returns the stored values in ascending frame order.
func (k *Keyframes) Values() []float64 {
	keys := k.Keys()
	values := make([]float64, 0, len(keys))
	for _, kf := range keys {
		values = append(values, kf.Value)
	}
	return values
}

// Simplify converts an animated series into a static one when every sample equals
// the mean within Tolerance. It always returns true.
func (k *Keyframes) Simplify() bool {
	if k.kind == KindStatic {
		k.length = 1
		k.startFrame = 0
		k.endFrame = 0
		return true
	}
	if len(k.frames) == 0 {
		return true
	}

	var total float64
	for _, f := range k.frames {
		total += k.samples[f]
	}
	mean := total / float64(len(k.frames))

	for _, f := range k.frames {
		if !FloatEqual(k.samples[f], mean) {
			return true
		}
	}

	k.kind = KindStatic
	k.constant = mean
	k.hasValue = true
	k.samples = nil
	k.frames = nil
	k.length = 1
	k.startFrame = 0
	k.endFrame = 0
	return true
}

// Map returns a new series of the same kind with fn applied to every value.
func (k *Keyframes) Map(fn func(float64) float64) *Keyframes {
	out := NewKeyframes(k.kind)
	if k.kind == KindStatic {
		if k.hasValue {
			out.Set(0, fn(k.constant))
		}
		return out
	}
	for _, f := range k.frames {
		out.Set(f, fn(k.samples[f]))
	}
	return out
}

// Clone returns a deep copy.
func (k *Keyframes) Clone() *Keyframes {
	return k.Map(func(v float64) float64 { return v })
}

func (k *Keyframes) String() string {
	if k.kind == KindStatic {
		if !k.hasValue {
			return "static(<unset>)"
		}
		return fmt.Sprintf("static(%g)", k.constant)
	}
	return fmt.Sprintf("animated(%d keys, %d..%d)", k.length, k.startFrame, k.endFrame)
}

type keyframesJSON struct {
	Kind  string     `json:"kind"`
	Value *float64   `json:"value,omitempty"`
	Keys  []Keyframe `json:"keys,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (k *Keyframes) MarshalJSON() ([]byte, error) {
	out := keyframesJSON{Kind: k.kind.String()}
	if k.kind == KindStatic {
		if k.hasValue {
			v := k.constant
			out.Value = &v
		}
	} else {
		out.Keys = k.Keys()
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler
func (k *Keyframes) UnmarshalJSON(data []byte) error {
	var in keyframesJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	switch in.Kind {
	case "static":
		*k = *NewKeyframes(KindStatic)
		if in.Value != nil {
			k.Set(0, *in.Value)
		}
	case "animated", "":
		*k = *NewAnimatedKeyframes(in.Keys...)
	default:
		return fmt.Errorf("unknown keyframe kind %q", in.Kind)
	}
	return nil
}
