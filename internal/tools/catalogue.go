package tools

// RegisterBuiltins registers the full built-in catalogue (spec §4.5) into
// reg: filesystem tools unconditionally, plus EXEC and NET tools scoped to
// the caller-supplied allowlists (normally internal/config's
// AllowedExecBinaries / AllowedNetHosts).
func RegisterBuiltins(reg *Registry, allowedExecBinaries, allowedNetHosts []string) {
	RegisterFilesystemTools(reg)
	RegisterDiffTool(reg)
	RegisterExecTool(reg, allowedExecBinaries)
	RegisterNetTools(reg, allowedNetHosts)
	RegisterBrowserTool(reg, allowedNetHosts)
	RegisterGitTools(reg)
}
