package browser

import (
	"regexp"
	"strings"
)

// snapshotElement is one parsed line of an accessibility snapshot:
// uid=D_D <role> "<name>" <attr=value>*
type snapshotElement struct {
	UID  string
	Role string
	Name string
}

// snapshotLinePattern matches line format. Grounded on
// chrome_devtools.py's `_parse_snapshot`: r'uid=(\d+_\d+)\s+(\w+)(?:\s+"([^"]*)")?'
var snapshotLinePattern = regexp.MustCompile(`uid=(\d+_\d+)\s+(\w+)(?:\s+"([^"]*)")?`)

// parseSnapshot extracts every uid/role/name triple from a raw
// accessibility-tree snapshot dump, ignoring indentation depth (detection
// and element-finding never need tree structure, only flat lookup).
func parseSnapshot(text string) []snapshotElement {
	matches := snapshotLinePattern.FindAllStringSubmatch(text, -1)
	elements := make([]snapshotElement, 0, len(matches))
	for _, m := range matches {
		elements = append(elements, snapshotElement{UID: m[1], Role: m[2], Name: m[3]})
	}
	return elements
}

// findByRole returns the first element whose role matches exactly
// (case-insensitive) and whose name contains nameContains (also
// case-insensitive; empty nameContains matches any name).
func findByRole(elements []snapshotElement, role, nameContains string) (snapshotElement, bool) {
	roleLower := strings.ToLower(role)
	nameLower := strings.ToLower(nameContains)
	for _, el := range elements {
		if strings.ToLower(el.Role) != roleLower {
			continue
		}
		if nameLower == "" || strings.Contains(strings.ToLower(el.Name), nameLower) {
			return el, true
		}
	}
	return snapshotElement{}, false
}

// findByName returns the first element whose name contains nameContains.
func findByName(elements []snapshotElement, nameContains string) (snapshotElement, bool) {
	nameLower := strings.ToLower(nameContains)
	for _, el := range elements {
		if strings.Contains(strings.ToLower(el.Name), nameLower) {
			return el, true
		}
	}
	return snapshotElement{}, false
}

// findAllByRole returns every element with the given role.
func findAllByRole(elements []snapshotElement, role string) []snapshotElement {
	roleLower := strings.ToLower(role)
	var out []snapshotElement
	for _, el := range elements {
		if strings.ToLower(el.Role) == roleLower {
			out = append(out, el)
		}
	}
	return out
}

var (
	nameAttrPattern = regexp.MustCompile(`name="([^"]+)"`)
	idAttrPattern   = regexp.MustCompile(`#([a-zA-Z0-9_-]+)`)
)

// guessRoleFromSelector translates a CSS-like selector into a best-guess
// accessibility role and a name hint, (i)-(ii). Grounded on
// chrome_devtools.py's `_guess_role_from_selector`.
func guessRoleFromSelector(selector string) (role, nameHint string) {
	lower := strings.ToLower(selector)

	if m := nameAttrPattern.FindStringSubmatch(selector); m != nil {
		nameHint = m[1]
	} else if m := idAttrPattern.FindStringSubmatch(selector); m != nil {
		nameHint = m[1]
	}

	if strings.Contains(lower, "input") {
		if strings.Contains(lower, "type=") {
			switch {
			case strings.Contains(lower, "submit"):
				return "button", nameHint
			case strings.Contains(lower, "checkbox"):
				return "checkbox", nameHint
			case strings.Contains(lower, "radio"):
				return "radio", nameHint
			case strings.Contains(lower, "file"):
				return "button", nameHint
			}
		}
		return "textbox", nameHint
	}
	if strings.Contains(lower, "button") {
		return "button", nameHint
	}
	if strings.Contains(lower, "select") {
		return "combobox", nameHint
	}
	if strings.Contains(lower, "textarea") {
		return "textbox", nameHint
	}
	if strings.Contains(lower, "a[") || strings.Contains(lower, "link") {
		return "link", nameHint
	}

	if m := nameAttrPattern.FindStringSubmatch(selector); m != nil {
		return "textbox", m[1]
	}
	if m := idAttrPattern.FindStringSubmatch(selector); m != nil {
		return "", m[1]
	}
	return "", ""
}

// resolveSelector performs the full translation chain from :
// guess role/name, search by role+name, fall back to name-only search,
// fall back to the first textbox for input-like selectors, else
// not-found. Grounded on chrome_devtools.py's `_find_element_for_selector`.
func resolveSelector(elements []snapshotElement, selector string) (snapshotElement, bool) {
	roleHint, nameHint := guessRoleFromSelector(selector)

	if roleHint != "" {
		if el, found := findByRole(elements, roleHint, nameHint); found {
			return el, true
		}
	}
	if nameHint != "" {
		if el, found := findByName(elements, nameHint); found {
			return el, true
		}
	}

	lower := strings.ToLower(selector)
	if strings.Contains(lower, "input") || strings.Contains(lower, "textarea") {
		if boxes := findAllByRole(elements, "textbox"); len(boxes) > 0 {
			return boxes[0], true
		}
	}
	return snapshotElement{}, false
}

// formRoles lists accessibility roles treated as form-like fields, per
// role→field-type mapping table.
var formRoles = map[string]FieldType{
	"textbox":        FieldText,
	"searchbox":      FieldSearch,
	"textarea":       FieldTextarea,
	"combobox":       FieldSelect,
	"listbox":        FieldSelect,
	"checkbox":       FieldCheckbox,
	"switch":         FieldCheckbox,
	"radio":          FieldRadio,
	"menuitemradio":  FieldRadio,
	"menuitemcheckbox": FieldCheckbox,
	"button":         FieldSubmit,
	"option":         FieldSelect,
	"spinbutton":     FieldNumber,
	"slider":         FieldNumber,
}

// fieldTypeForRole maps an accessibility role to a Form Field type,
// returning false for roles that are not form controls.
func fieldTypeForRole(role string) (FieldType, bool) {
	ft, ok := formRoles[strings.ToLower(role)]
	return ft, ok
}
