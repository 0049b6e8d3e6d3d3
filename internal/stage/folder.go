package stage

import (
	"harvester/internal/textutil"
)

const fallbackFolder = textutil.ContentIDPrefix + "0"

// TargetFolderFor groups content into folders keyed by the leading digits of
// its identifier: the first three digits with the last one zeroed, so
// FC2-PPV-1234567 lands in FC2-PPV-120. Shorter identifiers zero their last
// digit and identifiers without digits use FC2-PPV-0.
func TargetFolderFor(id string) string {
	digits, ok := textutil.ContentDigits(id)
	if !ok || digits == "" {
		return fallbackFolder
	}
	if len(digits) > 3 {
		digits = digits[:3]
	}
	return textutil.ContentIDPrefix + digits[:len(digits)-1] + "0"
}
