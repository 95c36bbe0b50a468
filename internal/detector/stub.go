package detector

import (
	"context"
	"strings"
	"time"

	"github.com/tphakala/vidguard/internal/moderation"
)

// KeywordDetector is a deterministic stand-in for a real model. It flags a
// video when its name contains one of Keywords and otherwise reports a low
// background score. Each check reports in a different native shape so the
// normalizer sees realistic input.
type KeywordDetector struct {
	CheckType moderation.CheckType
	Keywords  []string
	Latency   time.Duration
	hit       func(keyword string) RawResult
	miss      RawResult
}

func (k *KeywordDetector) Name() string                { return "keyword-" + string(k.CheckType) }
func (k *KeywordDetector) Check() moderation.CheckType { return k.CheckType }

// Detect implements Detector.
func (k *KeywordDetector) Detect(ctx context.Context, req Request) (RawResult, error) {
	if k.Latency > 0 {
		timer := time.NewTimer(k.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return RawResult{}, ctx.Err()
		case <-timer.C:
		}
	}
	name := strings.ToLower(req.Video.Name)
	if name == "" {
		name = strings.ToLower(req.Video.Ref)
	}
	for _, kw := range k.Keywords {
		if strings.Contains(name, kw) {
			return k.hit(kw), nil
		}
	}
	return k.miss, nil
}

// StubDetectors returns keyword detectors for every known check.
func StubDetectors(latency time.Duration) []Detector {
	return []Detector{
		&KeywordDetector{
			CheckType: moderation.CheckNudity,
			Keywords:  []string{"nsfw", "nude"},
			Latency:   latency,
			// frame classifier: unit scores, millisecond timestamps
			hit: func(string) RawResult {
				return RawResult{
					Score: 0.9, Scale: ScaleUnit, TimeUnit: UnitMilliseconds,
					Detections: []RawDetection{
						{Start: 15000, End: 20000, Label: "EXPOSED_GENITALIA", Score: 0.9},
						{Start: 21000, End: 22500, Label: "EXPOSED_BREAST", Score: 0.74},
					},
				}
			},
			miss: RawResult{Score: 0.2, Scale: ScaleUnit, TimeUnit: UnitMilliseconds, Detections: []RawDetection{}},
		},
		&KeywordDetector{
			CheckType: moderation.CheckCopyright,
			Keywords:  []string{"pirated", "copyright"},
			Latency:   latency,
			// fingerprint matcher: percent scores, second offsets, source guesses
			hit: func(string) RawResult {
				return RawResult{
					Score: 85, Scale: ScalePercent, TimeUnit: UnitSeconds,
					Detections: []RawDetection{
						{Start: 0, End: 30, Label: "audio_fingerprint", Score: 85, Detail: "Unknown commercial recording"},
					},
					Labels: []string{"Unknown commercial recording"},
				}
			},
			miss: RawResult{Score: 20, Scale: ScalePercent, TimeUnit: UnitSeconds, Detections: []RawDetection{}},
		},
		&KeywordDetector{
			CheckType: moderation.CheckFraud,
			Keywords:  []string{"scam", "fraud"},
			Latency:   latency,
			// text classifier over transcript and overlays: score only
			hit: func(kw string) RawResult {
				return RawResult{
					Score: 0.8, Scale: ScaleUnit, TimeUnit: UnitSeconds,
					Detections: []RawDetection{},
					Labels:     []string{"financial_scam", "keyword:" + kw},
				}
			},
			miss: RawResult{Score: 0.2, Scale: ScaleUnit, TimeUnit: UnitSeconds, Detections: []RawDetection{}},
		},
		&KeywordDetector{
			CheckType: moderation.CheckBlur,
			Keywords:  []string{"violence", "gore"},
			Latency:   latency,
			// scene model: frame indices at 25 fps
			hit: func(string) RawResult {
				return RawResult{
					Score: 0.75, Scale: ScaleUnit, TimeUnit: UnitFrames, FrameRate: 25,
					Detections: []RawDetection{
						{Start: 250, End: 300, Label: "violence", Score: 0.75},
					},
				}
			},
			miss: RawResult{Score: 0.1, Scale: ScaleUnit, TimeUnit: UnitFrames, FrameRate: 25, Detections: []RawDetection{}},
		},
	}
}
