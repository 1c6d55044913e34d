package capture

import "parallelcamera/internal/store"

// Step is one remote call in a processing plan.
type Step string

const (
	StepDescribe Step = "describe"
	StepAugment  Step = "augment"
	StepGenerate Step = "generate"
)

var stepLabels = map[Step]string{
	StepDescribe: "分析照片",
	StepAugment:  "生成创意元素",
	StepGenerate: "生成图像",
}

// Label returns the user-facing progress label for s.
func (s Step) Label() string {
	if label, ok := stepLabels[s]; ok {
		return label
	}
	return string(s)
}

// PlanFor returns the ordered remote calls for mode. The number of steps is
// the progress total shown to the user.
func PlanFor(mode store.Mode) []Step {
	switch mode {
	case store.ModeCreative:
		return []Step{StepDescribe, StepAugment, StepGenerate}
	case store.ModeRealistic, store.ModeMeta:
		return []Step{StepDescribe, StepGenerate}
	default:
		return nil
	}
}
