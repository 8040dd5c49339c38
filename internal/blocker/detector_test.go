package blocker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectCaptchaTurnstile(t *testing.T) {
	html := `<div class="cf-turnstile" data-sitekey="0x4AAA..."></div>`
	b, found := DetectCaptcha(html)
	require.True(t, found)
	require.Equal(t, KindCaptcha, b.Type)
	require.Equal(t, string(FamilyTurnstile), b.Subtype)
}

func TestDetectCaptchaHCaptcha(t *testing.T) {
	html := `<div class="h-captcha" data-sitekey="abc"></div>`
	b, found := DetectCaptcha(html)
	require.True(t, found)
	require.Equal(t, string(FamilyHCaptcha), b.Subtype)
}

func TestDetectCaptchaRecaptcha(t *testing.T) {
	html := `<div class="g-recaptcha" data-sitekey="abc"></div>`
	b, found := DetectCaptcha(html)
	require.True(t, found)
	require.Equal(t, string(FamilyRecaptcha), b.Subtype)
}

func TestDetectCaptchaNone(t *testing.T) {
	_, found := DetectCaptcha(`<div>nothing here</div>`)
	require.False(t, found)
}

func TestDetectLoginRequiredByURL(t *testing.T) {
	b, found := DetectLoginRequired(`<html></html>`, "https://example.com/sign-in")
	require.True(t, found)
	require.Equal(t, KindLoginRequired, b.Type)
}

func TestDetectLoginRequiredByContent(t *testing.T) {
	b, found := DetectLoginRequired(`<p>Please log in to continue</p>`, "https://example.com/careers")
	require.True(t, found)
	require.Equal(t, KindLoginRequired, b.Type)
}

func TestDetectLoginRequiredStructuralButApplicationPageIsNotLogin(t *testing.T) {
	html := `<form action="login"><input type="password"></form><p>Apply for this job, upload your resume and cover letter</p>`
	_, found := DetectLoginRequired(html, "https://example.com/careers/eng")
	require.False(t, found)
}

func TestDetectLoginRequiredStructuralWithoutApplicationContext(t *testing.T) {
	html := `<form action="login"><input type="password"></form>`
	b, found := DetectLoginRequired(html, "https://example.com/portal")
	require.True(t, found)
	require.Equal(t, KindLoginRequired, b.Type)
}

func TestDetectLoginRequiredPasswordAloneIsNotLogin(t *testing.T) {
	html := `<form action="create-account"><input type="password"></form>`
	_, found := DetectLoginRequired(html, "https://example.com/register")
	require.False(t, found)
}

func TestDetectMultiStepForm(t *testing.T) {
	b, found := DetectMultiStepForm(`<p>Step 2 of 4</p>`)
	require.True(t, found)
	require.Equal(t, KindMultiStepForm, b.Type)
}

func TestDetectLocationMismatch(t *testing.T) {
	b, found := DetectLocationMismatch(`<p>Must be located in the United States</p>`, "")
	require.True(t, found)
	require.Equal(t, KindLocationMismatch, b.Type)
}

func TestDetectAllOrdersCaptchaFirst(t *testing.T) {
	html := `<div class="cf-turnstile"></div><p>Please log in</p>`
	blockers := DetectAll(html, "https://example.com/careers", "")
	require.Len(t, blockers, 2)
	require.Equal(t, KindCaptcha, blockers[0].Type)
	require.Equal(t, KindLoginRequired, blockers[1].Type)
}
