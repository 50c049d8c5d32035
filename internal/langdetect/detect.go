// Package langdetect classifies free text into an ISO 639-1 language code.
//
// Detection is local and deterministic: same input, same result, no network.
// "Unknown" is a valid steady-state answer and means "skip translation".
package langdetect

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Unknown is returned when detection is inconclusive.
const Unknown = ""

// minConfidence gates trigram detection. Below it we report Unknown rather
// than risk translating a misdetected message.
const minConfidence = 0.8

type Result struct {
	Code       string // ISO 639-1, or Unknown
	Confidence float64
}

// Detect classifies text. Short or ambiguous input yields Unknown.
func Detect(text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Code: Unknown}
	}

	info := whatlanggo.Detect(text)
	code := isoTwoLetter(whatlanggo.LangToString(info.Lang))
	if code == "" {
		return Result{Code: Unknown, Confidence: info.Confidence}
	}
	if info.Confidence < minConfidence {
		return Result{Code: Unknown, Confidence: info.Confidence}
	}
	return Result{Code: code, Confidence: info.Confidence}
}

// Code is a convenience wrapper matching the classifier's DetectLanguage hook.
func Code(text string) string { return Detect(text).Code }

// isoTwoLetter maps the detector's ISO 639-3 codes to the 639-1 codes used
// across the routing table. Unmapped languages are treated as Unknown.
func isoTwoLetter(code string) string {
	switch code {
	case "eng":
		return "en"
	case "hin":
		return "hi"
	case "fra":
		return "fr"
	case "spa":
		return "es"
	case "deu":
		return "de"
	case "kor":
		return "ko"
	case "tgl":
		return "fil" // Tagalog -> Filipino
	case "cmn", "zho":
		return "zh"
	case "jpn":
		return "ja"
	case "rus":
		return "ru"
	case "ara":
		return "ar"
	case "por":
		return "pt"
	case "ita":
		return "it"
	case "nld":
		return "nl"
	case "pol":
		return "pl"
	case "tur":
		return "tr"
	case "vie":
		return "vi"
	case "tha":
		return "th"
	case "ind":
		return "id"
	case "ukr":
		return "uk"
	case "ces":
		return "cs"
	case "ell":
		return "el"
	case "heb":
		return "he"
	case "swe":
		return "sv"
	case "dan":
		return "da"
	case "fin":
		return "fi"
	case "nob", "nno":
		return "no"
	default:
		return Unknown
	}
}

// Name returns a human-readable language name for rendered payloads.
func Name(code string) string {
	switch code {
	case "en":
		return "English"
	case "hi":
		return "Hindi"
	case "fr":
		return "French"
	case "es":
		return "Spanish"
	case "de":
		return "German"
	case "fil":
		return "Filipino"
	case "pt":
		return "Portuguese"
	case "ko":
		return "Korean"
	case "zh":
		return "Chinese"
	case "ja":
		return "Japanese"
	case "ru":
		return "Russian"
	case "ar":
		return "Arabic"
	default:
		return "Unknown"
	}
}
