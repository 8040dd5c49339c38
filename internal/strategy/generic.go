package strategy

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/javimaligno/goapply-core/internal/browser"
	"github.com/javimaligno/goapply-core/internal/logging"
)

// GenericStrategy is the fallback used when no ATS-specific strategy
// matches. It relies on common field-naming conventions that work across
// most job application forms. Grounded on generic.py.
type GenericStrategy struct {
	BaseStrategy
	log *zap.Logger
}

// NewGenericStrategy builds the fallback strategy.
func NewGenericStrategy() *GenericStrategy {
	return &GenericStrategy{log: logging.L().Named("strategy.generic")}
}

func (g *GenericStrategy) Name() string { return "generic" }

// URLPatterns is empty: generic never wins the fast URL-pattern pass, only
// the final fallback.
func (g *GenericStrategy) URLPatterns() []string { return nil }

// Detect always returns true: generic is the catch-all.
func (g *GenericStrategy) Detect(ctx context.Context, pageHTML, pageURL string) bool { return true }

// fieldSelectors are comma-joined selector alternatives per named field,
// ported verbatim in meaning from generic.py's field_selectors property.
func (g *GenericStrategy) fieldSelectors() map[string]string {
	return map[string]string{
		"first_name": strings.Join([]string{
			`input[name*="first_name"]`, `input[name*="firstname"]`, `input[name*="fname"]`,
			`input[placeholder*="First"]`, `input[id*="first_name"]`, `input[id*="firstName"]`,
		}, ", "),
		"last_name": strings.Join([]string{
			`input[name*="last_name"]`, `input[name*="lastname"]`, `input[name*="lname"]`,
			`input[placeholder*="Last"]`, `input[id*="last_name"]`, `input[id*="lastName"]`,
		}, ", "),
		"email": strings.Join([]string{
			`input[type="email"]`, `input[name*="email"]`, `input[placeholder*="email"]`, `input[id*="email"]`,
		}, ", "),
		"phone": strings.Join([]string{
			`input[type="tel"]`, `input[name*="phone"]`, `input[name*="telephone"]`,
			`input[placeholder*="phone"]`, `input[id*="phone"]`,
		}, ", "),
		"linkedin": strings.Join([]string{
			`input[name*="linkedin"]`, `input[placeholder*="LinkedIn"]`, `input[id*="linkedin"]`,
		}, ", "),
		"resume": strings.Join([]string{
			`input[type="file"][name*="resume"]`, `input[type="file"][name*="cv"]`,
			`input[type="file"][accept*="pdf"]`, `input[type="file"]`,
		}, ", "),
		"cover_letter": strings.Join([]string{
			`textarea[name*="cover"]`, `textarea[placeholder*="cover"]`, `textarea[id*="cover"]`,
		}, ", "),
	}
}

var standardFieldTypes = map[browser.FieldType]bool{
	browser.FieldText: true, browser.FieldEmail: true, browser.FieldTel: true, browser.FieldFile: true,
}

var standardFieldNames = []string{
	"first_name", "last_name", "email", "phone", "linkedin", "github", "resume", "cv",
}

// AnalyzeForm categorizes the current page's form fields into standard
// (name/label matches a known field) vs custom.
func (g *GenericStrategy) AnalyzeForm(ctx context.Context, adapter browser.Adapter) (FormAnalysis, error) {
	dom := adapter.GetDOM(ctx, "", true)

	analysis := FormAnalysis{PageURL: dom.URL, PageTitle: dom.Title, TotalFields: len(dom.Fields)}
	for _, field := range dom.Fields {
		nameLower := strings.ToLower(field.Name)
		labelLower := strings.ToLower(field.Label)

		isStandard := standardFieldTypes[field.Type] && containsAnyName(nameLower, labelLower, standardFieldNames)
		if isStandard {
			analysis.StandardFields = append(analysis.StandardFields, field)
		} else {
			analysis.CustomFields = append(analysis.CustomFields, field)
		}
		if field.Type == browser.FieldFile {
			analysis.HasFileUpload = true
		}
	}
	return analysis, nil
}

func containsAnyName(nameLower, labelLower string, candidates []string) bool {
	for _, c := range candidates {
		if strings.Contains(nameLower, c) || strings.Contains(labelLower, c) {
			return true
		}
	}
	return false
}

// FillForm fills standard fields by trying each selector alternative in
// order until one is visible and fillable, per generic.py's fill_form.
func (g *GenericStrategy) FillForm(ctx context.Context, adapter browser.Adapter, profile UserProfile, cvPath, coverLetter string) FormFillResult {
	filled := make(map[string]string)
	var errs []string

	type mapping struct {
		key   string
		value string
	}
	mappings := []mapping{
		{"first_name", profile.FirstName},
		{"last_name", profile.LastName},
		{"email", profile.Email},
		{"phone", strings.TrimSpace(profile.PhoneCountryCode + " " + profile.Phone)},
		{"linkedin", profile.LinkedInURL},
	}

	selectors := g.fieldSelectors()
	for _, m := range mappings {
		if m.value == "" {
			continue
		}
		selectorList, ok := selectors[m.key]
		if !ok {
			continue
		}
		filledThis := false
		for _, sel := range splitSelectors(selectorList) {
			if !isElementVisible(ctx, adapter, sel) {
				continue
			}
			result := adapter.Fill(ctx, sel, m.value, true, false, 0)
			if result.Success {
				filled[sel] = m.value
				filledThis = true
				break
			}
		}
		if !filledThis {
			errs = append(errs, "failed to fill "+m.key)
		}
	}

	if coverLetter != "" {
		for _, sel := range splitSelectors(selectors["cover_letter"]) {
			if isElementVisible(ctx, adapter, sel) {
				if result := adapter.Fill(ctx, sel, coverLetter, true, false, 0); result.Success {
					preview := coverLetter
					if len(preview) > 50 {
						preview = preview[:50] + "..."
					}
					filled[sel] = preview
					break
				}
			}
		}
	}

	if cvPath != "" {
		for _, sel := range splitSelectors(selectors["resume"]) {
			if result := adapter.Upload(ctx, sel, cvPath); result.Success {
				filled[sel] = cvPath
				break
			}
		}
	}

	return FormFillResult{Success: len(filled) > 0, FieldsFilled: filled, Errors: errs}
}

var submitSelectors = []string{
	`button[type="submit"]`, `input[type="submit"]`, `button.submit`, `.submit-button`,
}

// Submit clicks the first visible submit-like control and waits briefly
// for navigation.
func (g *GenericStrategy) Submit(ctx context.Context, adapter browser.Adapter) SubmitResult {
	for _, sel := range submitSelectors {
		if !isElementVisible(ctx, adapter, sel) {
			continue
		}
		result := adapter.Click(ctx, sel, "left", 1, false, 0)
		if !result.Success {
			continue
		}
		g.WaitForNavigation(ctx, adapter, 5000)
		url, _ := adapter.GetCurrentURL(ctx)
		return SubmitResult{Success: true, ConfirmationMessage: "Form submitted", RedirectURL: url}
	}
	return SubmitResult{Success: false, Error: "could not find submit button"}
}
