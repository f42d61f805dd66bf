package program

// Analysis summarizes structural problems a program can run with but
// probably should not
type Analysis struct {
	TopChains [][]string `json:"top_chains"`
	// UnreachableActions are action blocks not reached from any Start block
	UnreachableActions []string            `json:"unreachable_actions"`
	UnconnectedInputs  []UnconnectedInput  `json:"unconnected_inputs"`
	DisconnectedBlocks []DisconnectedBlock `json:"disconnected_blocks"`
	ExpressionErrors   []ExpressionIssue   `json:"expression_errors"`
	ValidationStatus   string              `json:"validation_status"`
}

// UnconnectedInput is a DataIn port a block reads but nothing feeds
type UnconnectedInput struct {
	BlockID string `json:"block_id"`
	Kind    string `json:"kind"`
	Port    string `json:"port"`
}

// DisconnectedBlock is a function block with no data links at all
type DisconnectedBlock struct {
	BlockID string `json:"block_id"`
	Kind    string `json:"kind"`
	Issue   string `json:"issue"`
}

// ExpressionIssue is a Compare or SetValue block whose text does not parse
type ExpressionIssue struct {
	BlockID    string `json:"block_id"`
	Expression string `json:"expression"`
	Error      string `json:"error"`
}

// inputRequirer is implemented by blocks that cannot do without some of
// their DataIn ports. Speak, Sleep and Servo fall back to their fields.
type inputRequirer interface {
	RequiredInputs() []*Port
}

// expressionHolder is implemented by blocks that carry expression text
type expressionHolder interface {
	Expression() string
	ExpressionError() error
}

// Analyze inspects the program graph. Status is "healthy" when nothing
// was found and "warnings" otherwise.
func Analyze(p *Program) *Analysis {
	a := &Analysis{
		TopChains:          [][]string{},
		UnreachableActions: []string{},
		UnconnectedInputs:  []UnconnectedInput{},
		DisconnectedBlocks: []DisconnectedBlock{},
		ExpressionErrors:   []ExpressionIssue{},
		ValidationStatus:   "healthy",
	}

	// chains rooted at a Start block; the rest still run but are reported
	started := make(map[Block]bool)
	for _, top := range p.TopActions() {
		chain := []string{top.ID()}
		_, isStart := top.(*Start)
		started[top] = isStart
		for d := range Dependants(top) {
			chain = append(chain, d.ID())
			started[d] = isStart
		}
		a.TopChains = append(a.TopChains, chain)
	}

	for _, b := range p.blocks {
		if b.Template() {
			continue
		}
		if act, ok := b.(ActionBlock); ok && !started[act] {
			a.UnreachableActions = append(a.UnreachableActions, b.ID())
		}

		var required []*Port
		if r, ok := b.(inputRequirer); ok {
			required = r.RequiredInputs()
		}
		for _, in := range required {
			if len(in.sources) == 0 {
				a.UnconnectedInputs = append(a.UnconnectedInputs, UnconnectedInput{
					BlockID: b.ID(),
					Kind:    b.Kind().String(),
					Port:    in.name,
				})
			}
		}

		if _, ok := b.(FunctionBlock); ok && !hasDataLink(b) {
			a.DisconnectedBlocks = append(a.DisconnectedBlocks, DisconnectedBlock{
				BlockID: b.ID(),
				Kind:    b.Kind().String(),
				Issue:   "function block has no data connections",
			})
		}

		if h, ok := b.(expressionHolder); ok {
			if err := h.ExpressionError(); err != nil {
				a.ExpressionErrors = append(a.ExpressionErrors, ExpressionIssue{
					BlockID:    b.ID(),
					Expression: h.Expression(),
					Error:      err.Error(),
				})
			}
		}
	}

	if len(a.UnreachableActions) > 0 || len(a.UnconnectedInputs) > 0 ||
		len(a.DisconnectedBlocks) > 0 || len(a.ExpressionErrors) > 0 {
		a.ValidationStatus = "warnings"
	}
	return a
}

func hasDataLink(b Block) bool {
	for _, p := range b.Ports() {
		if !p.kind.IsControl() && p.IsConnected() {
			return true
		}
	}
	return false
}
