package domain

// TenantContext identifies who operates a POS session. It is built once per
// request and passed explicitly; nothing reads it from global state.
type TenantContext struct {
	TenantSlug string `json:"tenant_slug"`
	OperatorID string `json:"operator_id"`
	TerminalID string `json:"terminal_id,omitempty"`
}

func (t TenantContext) Valid() bool {
	return t.TenantSlug != "" && t.OperatorID != ""
}

// TerminalKey identifies the PDV a session belongs to. Operators without an
// explicit terminal get one terminal per operator.
func (t TenantContext) TerminalKey() string {
	terminal := t.TerminalID
	if terminal == "" {
		terminal = "operator:" + t.OperatorID
	}
	return t.TenantSlug + "/" + terminal
}
