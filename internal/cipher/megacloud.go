package cipher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/alvarorichard/aniresolve/internal/errs"
)

// VariablePair is an (offset, length) slice description recovered from the
// MegaCloud player script.
type VariablePair struct {
	Offset int
	Length int
}

var (
	// case 0x1b:a=b,c=d; style assignments inside the key-building switch.
	caseAssignRe = regexp.MustCompile(`case\s*0x[0-9a-f]+:\s*\w+\s*=\s*(\w+)\s*,\s*\w+\s*=\s*(\w+);`)
	identRe      = regexp.MustCompile(`^\w+$`)
)

// partKeyIdent names the assignment the upstream regex excludes.
const partKeyIdent = "partKey"

// ExtractObfuscationVariables scans script for the switch-case assignments
// that describe where the key is hidden in the encrypted blob. Each side of an
// assignment names an identifier whose hex literal is declared elsewhere in
// the script. An empty result means the script format changed.
func ExtractObfuscationVariables(script string) []VariablePair {
	matches := caseAssignRe.FindAllStringSubmatch(script, -1)
	pairs := make([]VariablePair, 0, len(matches))
	for _, m := range matches {
		if m[1] == partKeyIdent || m[2] == partKeyIdent {
			continue
		}
		offset, ok1 := resolveHexIdent(script, m[1])
		length, ok2 := resolveHexIdent(script, m[2])
		if !ok1 || !ok2 {
			continue
		}
		pairs = append(pairs, VariablePair{Offset: offset, Length: length})
	}
	return pairs
}

// resolveHexIdent finds ",ident=0x1f" in script. When the declaration is an
// expression rather than a literal it is evaluated with goja.
func resolveHexIdent(script, ident string) (int, bool) {
	if !identRe.MatchString(ident) {
		return 0, false
	}
	q := regexp.QuoteMeta(ident)
	literal := regexp.MustCompile(`,` + q + `=((?:0x)?([0-9a-fA-F]+))(?:[,;)]|$)`)
	if m := literal.FindStringSubmatch(script); m != nil {
		n, err := strconv.ParseInt(m[2], 16, 64)
		if err == nil {
			return int(n), true
		}
	}

	expr := regexp.MustCompile(`[,\s;(]` + q + `\s*=\s*([^,;]+)[,;]`)
	m := expr.FindStringSubmatch(script)
	if m == nil {
		return 0, false
	}
	return evalIntExpr(m[1])
}

// evalIntExpr evaluates a small arithmetic JS expression such as
// "0x3+0x1*0x2". Anything that is not plain arithmetic is rejected before
// it reaches the VM.
func evalIntExpr(expr string) (int, bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" || strings.ContainsAny(expr, "\"'`=;{}[]") {
		return 0, false
	}
	vm := goja.New()
	v, err := vm.RunString("(" + expr + ")")
	if err != nil || v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0, false
	}
	n := v.ToInteger()
	if n < 0 {
		return 0, false
	}
	return int(n), true
}

// DeriveSecretAndStrip walks pairs in order, moving Length characters from
// the blob into the secret each time. Offsets are relative to the blob with
// all prior removals applied, so the absolute start is Offset plus the total
// length already removed. The remainder is the blob without those characters.
func DeriveSecretAndStrip(blob string, pairs []VariablePair) (secret, remainder string, err error) {
	if len(pairs) == 0 {
		return "", "", errs.Decode("cipher.megacloud", "no key variables")
	}
	removed := make([]bool, len(blob))
	var sb strings.Builder
	consumed := 0
	for i, p := range pairs {
		start := p.Offset + consumed
		end := start + p.Length
		if p.Offset < 0 || p.Length < 0 || end > len(blob) {
			return "", "", errs.Decode("cipher.megacloud",
				"pair %d (%d,%d) out of range for blob of %d", i, p.Offset, p.Length, len(blob))
		}
		for j := start; j < end; j++ {
			sb.WriteByte(blob[j])
			removed[j] = true
		}
		consumed += p.Length
	}

	var rb strings.Builder
	rb.Grow(len(blob) - consumed)
	for i := 0; i < len(blob); i++ {
		if !removed[i] {
			rb.WriteByte(blob[i])
		}
	}
	return sb.String(), rb.String(), nil
}

// DecryptSources runs the full MegaCloud chain: variables from script, secret
// from blob, AES-GCM with the derived key.
func DecryptSources(script, blob string) (string, error) {
	pairs := ExtractObfuscationVariables(script)
	if len(pairs) == 0 {
		return "", errs.Decode("cipher.megacloud", "extractor outdated: no variables in %d byte script", len(script))
	}
	secret, remainder, err := DeriveSecretAndStrip(blob, pairs)
	if err != nil {
		return "", err
	}
	plain, err := DecryptWithDerivedKey(remainder, secret)
	if err != nil {
		return "", fmt.Errorf("decrypt with %d variable pairs: %w", len(pairs), err)
	}
	return plain, nil
}
