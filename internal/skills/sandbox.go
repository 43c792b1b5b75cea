package skills

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// wasmSandbox interprets a `wasm`-class skill's Go source with yaegi
// instead of a true wasm runtime (spec §4.6, grounded on the teacher's
// internal/autopoiesis.YaegiExecutor): an embeddable, capability-restricted
// interpreter with no ambient OS/network access except what the manifest
// declares. Unlike the teacher's executor, which allows a fixed stdlib
// safe-list, this sandbox's allowed-package set is computed per skill from
// its declared scopes. The interpreter itself loads the full stdlib symbol
// table; the restriction is that validateImports rejects, before
// evaluation, any skill source importing a package outside that set (so a
// skill without the NET scope cannot import net/http).
type wasmSandbox struct {
	timeout time.Duration
}

func newWasmSandbox() *wasmSandbox {
	return &wasmSandbox{timeout: 30 * time.Second}
}

var baseAllowedPackages = map[string]bool{
	"strings": true, "strconv": true, "fmt": true, "math": true,
	"regexp": true, "encoding/json": true, "encoding/base64": true,
	"time": true, "sort": true, "bytes": true, "path": true, "path/filepath": true,
}

// Run interprets code, which must define func RunSkill(input string) (string, error).
// scopes gates which non-base packages the code may import: "EXEC" never
// grants anything (os/exec stays forbidden unconditionally — the wasm
// sandbox has no subprocess escape hatch), "NET" grants net/http, "WRITE"
// grants os.
func (sb *wasmSandbox) Run(ctx context.Context, code string, scopes []string, input string) (string, error) {
	allowed := allowedPackagesFor(scopes)
	if err := validateImports(code, allowed); err != nil {
		return "", fmt.Errorf("skill sandbox: %w", err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return "", fmt.Errorf("skill sandbox: load stdlib: %w", err)
	}

	fullCode := code
	if !strings.Contains(code, "package main") {
		fullCode = "package main\n\n" + code
	}
	if _, err := i.Eval(fullCode); err != nil {
		return "", fmt.Errorf("skill sandbox: evaluate: %w", err)
	}

	fn, err := i.Eval("main.RunSkill")
	if err != nil {
		return "", fmt.Errorf("skill sandbox: RunSkill not found: %w", err)
	}
	runSkill, ok := fn.Interface().(func(string) (string, error))
	if !ok {
		return "", fmt.Errorf("skill sandbox: RunSkill has wrong signature, want func(string) (string, error)")
	}

	callCtx, cancel := context.WithTimeout(ctx, sb.timeout)
	defer cancel()

	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		out, err := runSkill(input)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- out
	}()

	select {
	case out := <-resultCh:
		return out, nil
	case err := <-errCh:
		return "", err
	case <-callCtx.Done():
		return "", fmt.Errorf("skill sandbox: timed out: %w", callCtx.Err())
	}
}

func allowedPackagesFor(scopes []string) map[string]bool {
	allowed := make(map[string]bool, len(baseAllowedPackages)+2)
	for k, v := range baseAllowedPackages {
		allowed[k] = v
	}
	for _, s := range scopes {
		switch s {
		case "NET":
			allowed["net/http"] = true
			allowed["net/url"] = true
		case "WRITE":
			allowed["os"] = true
		}
	}
	return allowed
}

func validateImports(code string, allowed map[string]bool) error {
	var forbidden []string
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock:
			pkg := strings.Trim(trimmed, `"`)
			if pkg != "" && !allowed[pkg] {
				forbidden = append(forbidden, pkg)
			}
		case strings.HasPrefix(trimmed, "import "):
			pkg := strings.Trim(strings.TrimPrefix(trimmed, "import "), `"`)
			if !allowed[pkg] {
				forbidden = append(forbidden, pkg)
			}
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports for this skill's declared scopes: %v", forbidden)
	}
	return nil
}
