package browser

import (
	"encoding/base64"
	"fmt"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var cfgValidator = validator.New()

// validateInitConfig enforces InitConfig's struct tags before either
// backend touches a real transport, so a malformed config fails fast with
// a field-level message instead of surfacing as an opaque transport error.
func validateInitConfig(cfg InitConfig) error {
	if err := cfgValidator.Struct(cfg); err != nil {
		return fmt.Errorf("invalid browser config: %w", err)
	}
	return nil
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

var base64ImagePattern = regexp.MustCompile(`!\[.*?\]\(data:image/\w+;base64,([^)]+)\)`)

// extractBase64Image pulls a base64 payload out of a markdown-embedded
// image, or returns text verbatim if it already looks like raw base64.
// Grounded on chrome_devtools.py's screenshot() regex.
func extractBase64Image(text string) string {
	if m := base64ImagePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}
