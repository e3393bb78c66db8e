package batch

// Hooks are invoked directly by stage drivers. Any field may be nil.
type Hooks struct {
	// OnItem is called once per item read, with the stage name.
	OnItem func(stage string)
	// OnSkip is called for every item excluded from a commit set.
	OnSkip func(stage string, err error)
	// OnComplete is called exactly once when the stage finishes.
	OnComplete func(report StageReport)
}

func (h Hooks) Item(stage string) {
	if h.OnItem != nil {
		h.OnItem(stage)
	}
}

func (h Hooks) Skip(stage string, err error) {
	if h.OnSkip != nil {
		h.OnSkip(stage, err)
	}
}

func (h Hooks) Complete(report StageReport) {
	if h.OnComplete != nil {
		h.OnComplete(report)
	}
}

// MergeHooks fans every call out to all given hooks in order.
func MergeHooks(all ...Hooks) Hooks {
	return Hooks{
		OnItem: func(stage string) {
			for _, h := range all {
				h.Item(stage)
			}
		},
		OnSkip: func(stage string, err error) {
			for _, h := range all {
				h.Skip(stage, err)
			}
		},
		OnComplete: func(report StageReport) {
			for _, h := range all {
				h.Complete(report)
			}
		},
	}
}
