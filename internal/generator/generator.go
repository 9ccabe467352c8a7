// Package generator implements the code generator (C8): given a scored
// candidate and its variation plan, it synthesizes the extracted
// definition and the call sites that replace each original instance.
// Generated.ImportEdits is always empty: no import edits are planned.
package generator

import (
	"fmt"
	"regexp"
	"strings"

	dserrors "github.com/dupesmith/dupesmith/internal/errors"
	"github.com/dupesmith/dupesmith/internal/model"
)

// CallSite is the replacement text for one original duplicate instance.
type CallSite struct {
	FilePath    string
	StartLine   int
	EndLine     int
	Replacement string
}

// Generated is the output of Generate.
type Generated struct {
	ExtractedDefinition string
	CallSites           []CallSite
	ImportEdits         []string
}

// funcHeaderRes maps a language to the regex that locates a function/method
// header in that language's syntax, grounded on the same per-language
// dispatch internal/applicator.insertDefinitions uses for insertion points.
// Every pattern captures the same four groups in the same order regardless
// of language: (1) the keyword/modifiers text kept verbatim before the
// name, (2) the name itself, (3) the opening paren (with any preceding
// whitespace), (4) the existing parameter list text — which is all
// generateFromDefinition reads out of the match.
var funcHeaderRes = map[string]*regexp.Regexp{
	"go":         regexp.MustCompile(`(?s)^(func\s+)(\w+)(\s*\()([^)]*)(\)\s*)([^{]*)\{`),
	"python":     regexp.MustCompile(`(?s)^(def\s+)(\w+)(\s*\()([^)]*)(\)\s*)([^:]*):`),
	"javascript": regexp.MustCompile(`(?s)^(function\s+)(\w+)(\s*\()([^)]*)(\)\s*)([^{]*)\{`),
	"typescript": regexp.MustCompile(`(?s)^(function\s+)(\w+)(\s*\()([^)]*)(\)\s*)([^{]*)\{`),
	"java":       regexp.MustCompile(`(?s)^((?:(?:public|private|protected|static|final|synchronized)\s+)*\w+(?:<[^>]*>)?\s+)(\w+)(\s*\()([^)]*)(\)\s*)([^{]*)\{`),
}

// Generate builds the extracted definition and call sites for a candidate.
// constructType names what the group's matches captured
// (function_definition, class_definition, or block); function/class
// matches already carry their own signature and return type, so generation
// is a rename-and-reparameterize; block matches have no signature of their
// own and are wrapped per the return-value-detection rule. language
// selects the header syntax generateFromDefinition matches against
// (go/python/javascript/typescript/java); generateFromBlock's synthesized
// wrapper is Go syntax regardless of language (see DESIGN.md).
func Generate(candidate model.Candidate, constructType string, extractedName string, language string) (Generated, error) {
	if len(candidate.Group.Instances) < 2 {
		return Generated{}, dserrors.New(dserrors.InvalidInput, "candidate must have at least two instances to generate an extraction")
	}
	if extractedName == "" {
		extractedName = "Extracted"
	}

	baseline := candidate.Group.Instances[0]
	body := baseline.Text

	paramNames := make([]string, 0, len(candidate.Plan.ParameterSlots))
	for _, slot := range candidate.Plan.ParameterSlots {
		paramNames = append(paramNames, slot.Name)
	}

	switch constructType {
	case "block":
		return generateFromBlock(candidate, body, extractedName, paramNames)
	default:
		return generateFromDefinition(candidate, body, extractedName, paramNames, language)
	}
}

// generateFromDefinition handles function_definition/class_definition
// matches, which already have a name, parameter list, and return type: the
// extraction renames the definition and promotes any slot not already a
// declared parameter into a new one.
func generateFromDefinition(candidate model.Candidate, body, extractedName string, paramNames []string, language string) (Generated, error) {
	re, ok := funcHeaderRes[language]
	if !ok {
		re = funcHeaderRes["go"]
	}
	match := re.FindStringSubmatchIndex(body)
	if match == nil {
		return Generated{}, dserrors.New(dserrors.MalformedOutput, "could not locate a function header in the baseline instance")
	}

	existingParamList := body[match[8]:match[9]]
	existingNames := make(map[string]bool)
	for _, p := range strings.Split(existingParamList, ",") {
		fields := strings.Fields(strings.TrimSpace(p))
		if len(fields) > 0 {
			existingNames[fields[0]] = true
		}
	}

	var newParams []string
	for i, slot := range candidate.Plan.ParameterSlots {
		if existingNames[paramNames[i]] {
			continue
		}
		newParams = append(newParams, fmt.Sprintf("%s %s", slot.Name, goType(slot.InferredType)))
	}

	paramList := existingParamList
	if len(newParams) > 0 {
		if strings.TrimSpace(paramList) != "" {
			paramList = paramList + ", " + strings.Join(newParams, ", ")
		} else {
			paramList = strings.Join(newParams, ", ")
		}
	}

	rewritten := body[:match[4]] + extractedName + body[match[6]:match[7]] + paramList + body[match[9]:]
	rewritten = substituteSlots(rewritten, candidate.Plan.ParameterSlots)

	callSites := buildCallSites(candidate, extractedName)
	return Generated{
		ExtractedDefinition: rewritten,
		CallSites:           callSites,
		ImportEdits:         unionImports(candidate),
	}, nil
}

// generateFromBlock handles a bare block match with no signature of its
// own: it must be wrapped in a synthesized function, whose return value
// comes from detectReturn (the variable of a final `:=` statement, else
// none). Unlike
// generateFromDefinition, the synthesized wrapper is always Go syntax;
// block-construct extraction for other languages is left to a future
// per-language wrapper template.
func generateFromBlock(candidate model.Candidate, body, extractedName string, paramNames []string) (Generated, error) {
	substituted := substituteSlots(body, candidate.Plan.ParameterSlots)

	retVar, retType := detectReturn(body)

	var params []string
	for i, slot := range candidate.Plan.ParameterSlots {
		params = append(params, fmt.Sprintf("%s %s", paramNames[i], goType(slot.InferredType)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "func %s(%s)", extractedName, strings.Join(params, ", "))
	if retType != "" {
		fmt.Fprintf(&b, " %s", retType)
	}
	b.WriteString(" {\n")
	b.WriteString(indent(substituted))
	if retVar != "" {
		fmt.Fprintf(&b, "\n\treturn %s", retVar)
	}
	b.WriteString("\n}\n")

	callSites := buildCallSites(candidate, extractedName)
	return Generated{
		ExtractedDefinition: b.String(),
		CallSites:           callSites,
		ImportEdits:         unionImports(candidate),
	}, nil
}

var assignRe = regexp.MustCompile(`(\w+)\s*:?=\s*[^=]`)

// detectReturn applies the last-statement heuristic: a `:=` declaration of
// a bare identifier on the final non-empty line is returned, typed any;
// whether that variable is used after the matched span is not checked.
// Any other final line, including a trailing bare expression, leaves the
// block void: the expression stays in the body and is not returned.
func detectReturn(body string) (variable string, goReturnType string) {
	lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || line == "}" {
			continue
		}
		if m := assignRe.FindStringSubmatch(line); m != nil && strings.Contains(line, ":=") {
			return m[1], "any"
		}
		if !strings.Contains(line, "=") && !strings.HasSuffix(line, "{") && line != "" {
			return "", "" // tail expression case: caller keeps the expression itself, no named variable
		}
		break
	}
	return "", ""
}

// substituteSlots rewrites body, replacing each slot's own baseline sample
// (always its first recorded sample) with the slot's parameter name.
func substituteSlots(body string, slots []model.ParameterSlot) string {
	for _, slot := range slots {
		if len(slot.SampleValues) == 0 {
			continue
		}
		original := slot.SampleValues[0]
		if original == slot.Name {
			continue
		}
		if isIdentifierLike(original) {
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(original) + `\b`)
			body = re.ReplaceAllString(body, slot.Name)
		} else {
			body = strings.ReplaceAll(body, original, slot.Name)
		}
	}
	return body
}

var identifierLikeRe = regexp.MustCompile(`^[A-Za-z_]\w*$`)

func isIdentifierLike(s string) bool {
	return identifierLikeRe.MatchString(s)
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "\t" + l
	}
	return strings.Join(lines, "\n")
}

// buildCallSites emits one replacement per instance, each invoking
// extractedName with the identifier or literal that varied at that
// instance, in parameter order, preserving the instance's own indentation.
func buildCallSites(candidate model.Candidate, extractedName string) []CallSite {
	slots := candidate.Plan.ParameterSlots
	sites := make([]CallSite, 0, len(candidate.Group.Instances))
	for idx, inst := range candidate.Group.Instances {
		args := make([]string, 0, len(slots))
		for _, slot := range slots {
			arg := slot.SampleValues[0]
			if idx < len(slot.SampleValues) {
				arg = slot.SampleValues[idx]
			}
			args = append(args, arg)
		}
		indentPrefix := leadingWhitespace(inst.Text)
		call := fmt.Sprintf("%s%s(%s)", indentPrefix, extractedName, strings.Join(args, ", "))
		sites = append(sites, CallSite{
			FilePath:    inst.FilePath,
			StartLine:   inst.StartLine,
			EndLine:     inst.EndLine,
			Replacement: call,
		})
	}
	return sites
}

func leadingWhitespace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[:i]
}

// unionImports always returns nil, whatever the candidate holds: matches
// carry a single construct span, not the import block of the file around
// it, so there are no per-instance import lines to union. It keeps a
// stable place for import edits without changing Generate's signature.
func unionImports(candidate model.Candidate) []string {
	return nil
}

// goType maps the variation analyzer's abstract inferred type to a Go type
// name for parameter synthesis.
func goType(inferred string) string {
	switch inferred {
	case "integer":
		return "int"
	case "float":
		return "float64"
	case "boolean":
		return "bool"
	case "string":
		return "string"
	default:
		return "any"
	}
}
