package model

// ActionConfig is the declarative form of an action, as it appears in a YAML
// or JSON document.
type ActionConfig struct {
	Type     string         `json:"type"               yaml:"type"`
	Params   map[string]any `json:"params,omitempty"   yaml:"params,omitempty"`
	Actions  []ActionConfig `json:"actions,omitempty"  yaml:"actions,omitempty"`
	Branches []BranchConfig `json:"branches,omitempty" yaml:"branches,omitempty"`
	Else     []ActionConfig `json:"else,omitempty"     yaml:"else,omitempty"`
}

// BranchConfig is one if/elseif arm of an "if" action.
type BranchConfig struct {
	Cond    string         `json:"cond"    yaml:"cond"`
	Actions []ActionConfig `json:"actions" yaml:"actions"`
}
