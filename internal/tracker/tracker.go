// Package tracker implements a constant-velocity, greedy-IoU multi-object
// tracker with a single-target lock policy, matching scout-vision's
// tracker design: predict, associate, spawn, prune, then decide the lock.
package tracker

import "fmt"

// Detection is one frame's normalized (0..1) detection from the vision
// facade.
type Detection struct {
	ClassID int32
	Conf    float32
	Cx, Cy  float32
	W, H    float32
}

// TrackingConfig controls association and lock thresholds.
type TrackingConfig struct {
	Enable            bool
	MaxAgeFrames      uint32
	MinHits           uint32
	IOUMatchThreshold float32
	MaxTracks         int
	TargetClass       string
	LockMinConf       float32
}

// Track is one tracked object.
type Track struct {
	ID      uint64
	ClassID int32
	Conf    float32
	Cx, Cy  float32
	W, H    float32
	Vx, Vy  float32
	Hits    uint32
	Age     uint32
	Miss    uint32
}

// TrackOutput is the result of one Update call.
type TrackOutput struct {
	Tracks []Track
	Locked *Track
	Note   string
}

// Tracker is not goroutine-safe; the mission loop owns a single instance.
type Tracker struct {
	cfg           TrackingConfig
	nextID        uint64
	tracks        []Track
	lockedID      *uint64
	targetClassID *int32
}

// New resolves cfg.TargetClass against classNames by name; if the name is
// absent, no lock will ever be possible (not treated as an error, matching
// the original's Tracker::new).
func New(cfg TrackingConfig, classNames []string) *Tracker {
	t := &Tracker{cfg: cfg, nextID: 1}
	for i, name := range classNames {
		if name == cfg.TargetClass {
			id := int32(i)
			t.targetClassID = &id
			break
		}
	}
	return t
}

// HasLock reports whether a track is currently locked.
func (t *Tracker) HasLock() bool {
	return t.lockedID != nil
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Update predicts existing tracks forward, associates them against the
// frame's detections by greedy IoU, spawns tracks for unmatched
// detections, prunes stale tracks, and finally resolves the lock.
func (t *Tracker) Update(dets []Detection) TrackOutput {
	if !t.cfg.Enable {
		return TrackOutput{Note: "tracking disabled"}
	}

	for i := range t.tracks {
		tr := &t.tracks[i]
		tr.Cx = clamp01(tr.Cx + tr.Vx)
		tr.Cy = clamp01(tr.Cy + tr.Vy)
		tr.Age++
		tr.Miss++
		tr.Conf *= 0.995
	}

	usedDet := make([]bool, len(dets))
	for i := range t.tracks {
		tr := &t.tracks[i]
		bestI := -1
		bestIOU := float32(0)
		for j, d := range dets {
			if usedDet[j] || d.ClassID != tr.ClassID {
				continue
			}
			v := iou(tr.Cx, tr.Cy, tr.W, tr.H, d.Cx, d.Cy, d.W, d.H)
			if v > bestIOU {
				bestIOU = v
				bestI = j
			}
		}
		if bestI >= 0 && bestIOU >= t.cfg.IOUMatchThreshold {
			d := dets[bestI]
			usedDet[bestI] = true

			nx := d.Cx - tr.Cx
			ny := d.Cy - tr.Cy
			tr.Vx = 0.7*tr.Vx + 0.3*nx
			tr.Vy = 0.7*tr.Vy + 0.3*ny

			tr.Cx, tr.Cy, tr.W, tr.H = d.Cx, d.Cy, d.W, d.H
			if d.Conf > tr.Conf {
				tr.Conf = d.Conf
			}
			tr.Hits++
			tr.Miss = 0
		}
	}

	for j, d := range dets {
		if usedDet[j] {
			continue
		}
		if len(t.tracks) >= t.cfg.MaxTracks {
			break
		}
		t.tracks = append(t.tracks, Track{
			ID: t.nextID, ClassID: d.ClassID, Conf: d.Conf,
			Cx: d.Cx, Cy: d.Cy, W: d.W, H: d.H,
			Hits: 1, Age: 1,
		})
		t.nextID++
	}

	kept := t.tracks[:0]
	for _, tr := range t.tracks {
		if tr.Miss <= t.cfg.MaxAgeFrames {
			kept = append(kept, tr)
		}
	}
	t.tracks = kept

	note := ""
	if t.lockedID != nil {
		if t.findByID(*t.lockedID) != nil {
			note = fmt.Sprintf("lock kept: %d", *t.lockedID)
		} else {
			t.lockedID = nil
			note = "lock lost"
		}
	}

	if t.lockedID == nil && t.targetClassID != nil {
		var best *Track
		for i := range t.tracks {
			tr := &t.tracks[i]
			if tr.ClassID != *t.targetClassID || tr.Conf < t.cfg.LockMinConf || tr.Hits < t.cfg.MinHits {
				continue
			}
			if best == nil || tr.Conf > best.Conf {
				best = tr
			}
		}
		if best != nil {
			id := best.ID
			t.lockedID = &id
			note = fmt.Sprintf("lock acquired: %d", id)
		}
	}

	var locked *Track
	if t.lockedID != nil {
		if tr := t.findByID(*t.lockedID); tr != nil {
			cp := *tr
			locked = &cp
		}
	}

	return TrackOutput{Tracks: append([]Track(nil), t.tracks...), Locked: locked, Note: note}
}

func (t *Tracker) findByID(id uint64) *Track {
	for i := range t.tracks {
		if t.tracks[i].ID == id {
			return &t.tracks[i]
		}
	}
	return nil
}

func iou(cx1, cy1, w1, h1, cx2, cy2, w2, h2 float32) float32 {
	x1a, y1a, x1b, y1b := cx1-w1/2, cy1-h1/2, cx1+w1/2, cy1+h1/2
	x2a, y2a, x2b, y2b := cx2-w2/2, cy2-h2/2, cx2+w2/2, cy2+h2/2

	ixa, iya := max32(x1a, x2a), max32(y1a, y2a)
	ixb, iyb := min32(x1b, x2b), min32(y1b, y2b)

	iw, ih := max32(ixb-ixa, 0), max32(iyb-iya, 0)
	inter := iw * ih
	a1 := max32(x1b-x1a, 0) * max32(y1b-y1a, 0)
	a2 := max32(x2b-x2a, 0) * max32(y2b-y2a, 0)
	union := a1 + a2 - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
