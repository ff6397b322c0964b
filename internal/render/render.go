// File: internal/render/render.go
// Brief: Two-phase template rendering (free-form variables, then parameters).

package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"
)

// Error reports a failed render for one component. Fatal for the component's
// stage.
type Error struct {
	Component string
	Template  string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("render component %q (%s): %v", e.Component, e.Template, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Result is a rendered manifest plus render diagnostics.
type Result struct {
	Objects []*unstructured.Unstructured
	// SkippedParams lists supplied parameters the template does not declare.
	SkippedParams []string
}

// Empty reports whether the render produced no objects at all.
func (r *Result) Empty() bool { return len(r.Objects) == 0 }

// NamesForKind returns the object names for a kind, in manifest order.
// Matching is case-insensitive on the kind.
func (r *Result) NamesForKind(kind string) []string {
	var names []string
	for _, obj := range r.ObjectsForKind(kind) {
		names = append(names, obj.GetName())
	}
	return names
}

// ObjectsForKind returns the rendered objects of one kind, in manifest order.
func (r *Result) ObjectsForKind(kind string) []*unstructured.Unstructured {
	var out []*unstructured.Unstructured
	for _, obj := range r.Objects {
		if strings.EqualFold(obj.GetKind(), kind) {
			out = append(out, obj)
		}
	}
	return out
}

// Renderer turns a template plus variables into cluster objects. The deploy
// pipeline treats this as a black box so custom logic can swap it out.
type Renderer interface {
	Render(tpl *Template, params map[string]string, freeForm map[string]any, opts Options) (*Result, error)
}

// Options tune a single render call.
type Options struct {
	// ScaleFactor multiplies cpu/memory requests and limits on every
	// rendered object. 1 (or 0, the zero value) leaves them alone; a
	// negative factor strips them.
	ScaleFactor float64
	// Label, when set as "key=value", is added to every object's labels.
	Label string
}

// TwoPhase is the default Renderer: phase one substitutes free-form
// variables into the raw template text, phase two substitutes declared
// parameters into the parsed object list.
type TwoPhase struct{}

func (TwoPhase) Render(tpl *Template, params map[string]string, freeForm map[string]any, opts Options) (*Result, error) {
	text, err := substituteVars(tpl, freeForm)
	if err != nil {
		return nil, &Error{Component: tpl.Name, Template: tpl.Path, Err: err}
	}
	res, err := substituteParams(tpl, text, params)
	if err != nil {
		return nil, &Error{Component: tpl.Name, Template: tpl.Path, Err: err}
	}
	if err := applyOptions(res, opts); err != nil {
		return nil, &Error{Component: tpl.Name, Template: tpl.Path, Err: err}
	}
	return res, nil
}

// RenderVarsOnly runs only the first phase and returns the substituted text.
// Used by `process --vars-only`.
func RenderVarsOnly(tpl *Template, freeForm map[string]any) (string, error) {
	text, err := substituteVars(tpl, freeForm)
	if err != nil {
		return "", &Error{Component: tpl.Name, Template: tpl.Path, Err: err}
	}
	return text, nil
}

var rawParamRe = regexp.MustCompile(`\$\{\{[A-Za-z_][A-Za-z0-9_]*\}\}`)

func substituteVars(tpl *Template, freeForm map[string]any) (string, error) {
	masked, tokens := maskRawParams(string(tpl.raw))
	t, err := template.New(tpl.Name).Option("missingkey=zero").Parse(masked)
	if err != nil {
		return "", fmt.Errorf("parse variable expressions: %w", err)
	}
	if freeForm == nil {
		freeForm = map[string]any{}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, freeForm); err != nil {
		return "", fmt.Errorf("substitute variables: %w", err)
	}
	// missingkey=zero renders untyped nils as "<no value>"; scrub them so an
	// empty variable mapping yields an empty field, not a placeholder.
	return unmaskRawParams(strings.ReplaceAll(buf.String(), "<no value>", ""), tokens), nil
}

// maskRawParams hides ${{NAME}} tokens from the variable phase: their inner
// braces would otherwise parse as template actions. unmaskRawParams restores
// them after execution so the parameter phase sees the original tokens.
func maskRawParams(text string) (string, []string) {
	var tokens []string
	masked := rawParamRe.ReplaceAllStringFunc(text, func(token string) string {
		tokens = append(tokens, token)
		return fmt.Sprintf("\x00raw%d\x00", len(tokens)-1)
	})
	return masked, tokens
}

func unmaskRawParams(text string, tokens []string) string {
	for i, token := range tokens {
		text = strings.Replace(text, fmt.Sprintf("\x00raw%d\x00", i), token, 1)
	}
	return text
}

func substituteParams(tpl *Template, text string, params map[string]string) (*Result, error) {
	var doc templateDoc
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("parse substituted template: %w", err)
	}

	declared := map[string]bool{}
	values := map[string]string{}
	for _, p := range doc.Parameters {
		declared[p.Name] = true
		if v, ok := params[p.Name]; ok {
			values[p.Name] = v
			continue
		}
		if p.Value == "" && p.Required {
			return nil, fmt.Errorf("required parameter %q has no value", p.Name)
		}
		values[p.Name] = p.Value
	}

	var skipped []string
	for name := range params {
		if !declared[name] {
			skipped = append(skipped, name)
		}
	}
	sort.Strings(skipped)

	res := &Result{SkippedParams: skipped}
	for i, objMap := range doc.Objects {
		substituted, err := substituteObject(objMap, values)
		if err != nil {
			return nil, fmt.Errorf("objects[%d]: %w", i, err)
		}
		obj := &unstructured.Unstructured{Object: substituted}
		mergeLabels(obj, doc.Labels)
		res.Objects = append(res.Objects, obj)
	}
	return res, nil
}

// substituteObject expands ${NAME} (string substitution) and "${{NAME}}"
// (raw substitution, the whole string value becomes the parameter's parsed
// value) through one object.
func substituteObject(obj map[string]any, values map[string]string) (map[string]any, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	out := string(raw)
	for name, value := range values {
		quoted, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		// Raw form first so the string form does not eat its inner braces.
		rawToken := `"${{` + name + `}}"`
		if strings.Contains(out, rawToken) {
			rawValue := strings.TrimSpace(value)
			if rawValue == "" {
				rawValue = "null"
			}
			if !json.Valid([]byte(rawValue)) {
				rawValue = string(quoted)
			}
			out = strings.ReplaceAll(out, rawToken, rawValue)
		}
		out = strings.ReplaceAll(out, "${"+name+"}", jsonInnerString(quoted))
	}
	var substituted map[string]any
	if err := json.Unmarshal([]byte(out), &substituted); err != nil {
		return nil, fmt.Errorf("parameter substitution produced invalid object: %w", err)
	}
	return substituted, nil
}

// jsonInnerString strips the surrounding quotes from a JSON-encoded string so
// it can replace a ${NAME} token embedded inside a larger string.
func jsonInnerString(quoted []byte) string {
	s := string(quoted)
	return strings.TrimSuffix(strings.TrimPrefix(s, `"`), `"`)
}

func mergeLabels(obj *unstructured.Unstructured, labels map[string]string) {
	if len(labels) == 0 {
		return
	}
	merged := obj.GetLabels()
	if merged == nil {
		merged = map[string]string{}
	}
	for k, v := range labels {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	obj.SetLabels(merged)
}

func applyOptions(res *Result, opts Options) error {
	if opts.Label != "" {
		key, value, ok := strings.Cut(opts.Label, "=")
		if !ok || key == "" {
			return fmt.Errorf("label %q is not of the form key=value", opts.Label)
		}
		for _, obj := range res.Objects {
			labels := obj.GetLabels()
			if labels == nil {
				labels = map[string]string{}
			}
			labels[key] = value
			obj.SetLabels(labels)
		}
	}
	if opts.ScaleFactor != 0 && opts.ScaleFactor != 1 {
		for _, obj := range res.Objects {
			ScaleResources(obj.Object, opts.ScaleFactor)
		}
	}
	return nil
}
