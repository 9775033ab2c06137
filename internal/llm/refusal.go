package llm

import "strings"

// RefusalDetector flags answers where the model claims it cannot process
// the attached image. Kept behind an interface so the substring heuristic
// can be replaced with a classifier without touching callers.
type RefusalDetector interface {
	DetectRefusal(text string) bool
}

// SubstringRefusalDetector matches known refusal phrases, case-insensitive.
type SubstringRefusalDetector struct {
	markers []string
}

// NewSubstringRefusalDetector returns a detector with the default marker
// set covering the phrasings seen in production for both providers.
func NewSubstringRefusalDetector() *SubstringRefusalDetector {
	return &SubstringRefusalDetector{markers: []string{
		"не вижу изображен",
		"не вижу фото",
		"не могу увидеть",
		"не могу просмотреть",
		"не могу обработать изображен",
		"не могу проанализировать изображен",
		"изображение не приложено",
		"cannot see the image",
		"can't see the image",
		"unable to see the image",
		"cannot view the image",
		"unable to process the image",
		"no image was provided",
		"i don't see an image",
	}}
}

// DetectRefusal reports whether text contains any refusal marker.
func (d *SubstringRefusalDetector) DetectRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range d.markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
