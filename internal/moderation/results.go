package moderation

import "encoding/json"

// Likelihood is the provider's confidence scale for one abuse category.
type Likelihood string

const (
	LikelihoodUnknown      Likelihood = "UNKNOWN"
	LikelihoodVeryUnlikely Likelihood = "VERY_UNLIKELY"
	LikelihoodUnlikely     Likelihood = "UNLIKELY"
	LikelihoodPossible     Likelihood = "POSSIBLE"
	LikelihoodLikely       Likelihood = "LIKELY"
	LikelihoodVeryLikely   Likelihood = "VERY_LIKELY"
)

// SafeSearchAnnotation is the per-image classification across the abuse
// categories the provider scores.
type SafeSearchAnnotation struct {
	Adult    Likelihood `json:"adult"`
	Spoof    Likelihood `json:"spoof"`
	Medical  Likelihood `json:"medical"`
	Violence Likelihood `json:"violence"`
	Racy     Likelihood `json:"racy"`
}

// Verdict buckets an image by the worst category severity.
type Verdict int

const (
	// VerdictClean means no category scored at or above POSSIBLE.
	VerdictClean Verdict = iota
	// VerdictPossible means the worst category scored POSSIBLE.
	VerdictPossible
	// VerdictPositive means some category scored LIKELY or VERY_LIKELY.
	VerdictPositive
)

// Verdict returns the image's bucket. Certain and likely hits are positive
// abuse; borderline hits need review; everything else is clean.
func (a SafeSearchAnnotation) Verdict() Verdict {
	worst := VerdictClean
	for _, l := range []Likelihood{a.Adult, a.Spoof, a.Medical, a.Violence, a.Racy} {
		switch l {
		case LikelihoodVeryLikely, LikelihoodLikely:
			return VerdictPositive
		case LikelihoodPossible:
			worst = VerdictPossible
		}
	}
	return worst
}

// ImageAnnotation is one image's entry in a provider result file.
type ImageAnnotation struct {
	Context struct {
		URI string `json:"uri"`
	} `json:"context"`
	SafeSearch *SafeSearchAnnotation `json:"safeSearchAnnotation"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// resultFile is the top-level shape of one batch output file.
type resultFile struct {
	Responses []ImageAnnotation `json:"responses"`
}

func decodeResultFile(data []byte) ([]ImageAnnotation, error) {
	var f resultFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f.Responses, nil
}
