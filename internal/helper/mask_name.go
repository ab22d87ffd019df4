package helper

import "strings"

// MaskName hides a patient's full name from roles without a need-to-know
// relationship: each word keeps its first letter, the rest become asterisks.
// "Ana Lestari" -> "A** L******".
func MaskName(name string) string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return ""
	}

	masked := make([]string, 0, len(words))
	for _, w := range words {
		runes := []rune(w)
		if len(runes) == 1 {
			masked = append(masked, string(runes))
			continue
		}
		masked = append(masked, string(runes[0])+strings.Repeat("*", len(runes)-1))
	}

	return strings.Join(masked, " ")
}
