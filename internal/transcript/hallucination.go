package transcript

import (
	"fmt"
	"strings"
	"unicode"
)

var stockOutros = []string{
	"thanks for watching",
	"thank you for watching",
	"subtitles by",
	"subtitled by",
	"transcribed by",
	"please subscribe",
	"like and subscribe",
	"see you in the next video",
	"amara org",
}

var cityNames = map[string]bool{
	"coventry": true, "birmingham": true, "solihull": true, "london": true,
	"manchester": true, "leicester": true, "nuneaton": true, "warwick": true,
	"rugby": true, "leamington": true, "kenilworth": true, "wolverhampton": true,
	"nottingham": true, "oxford": true, "bristol": true, "liverpool": true,
	"leeds": true, "sheffield": true, "derby": true, "northampton": true,
	"redditch": true, "bedworth": true, "walsall": true, "dudley": true,
}

var numberWords = map[string]bool{
	"one": true, "two": true, "three": true, "four": true, "five": true,
	"six": true, "seven": true, "eight": true, "nine": true, "ten": true,
	"eleven": true, "twelve": true, "thirteen": true, "fourteen": true,
	"fifteen": true, "sixteen": true, "seventeen": true, "eighteen": true,
	"nineteen": true, "twenty": true, "thirty": true, "forty": true,
	"fifty": true, "sixty": true, "seventy": true, "eighty": true,
	"ninety": true, "hundred": true, "thousand": true,
	"first": true, "second": true, "third": true, "fourth": true, "fifth": true,
	"sixth": true, "seventh": true, "eighth": true, "ninth": true, "tenth": true,
}

func (f *Filter) rejectHallucination(u utterance, c Context) string {
	for _, p := range stockOutros {
		if strings.Contains(u.norm, p) {
			return "stock phrase: " + p
		}
	}

	cities := make(map[string]bool)
	numbers := 0
	digitWords := 0
	for _, w := range u.words {
		if cityNames[w] {
			cities[w] = true
		}
		if numberWords[w] {
			numbers++
		}
		if strings.IndexFunc(w, unicode.IsDigit) >= 0 {
			digitWords++
		}
	}
	if len(cities) >= 3 {
		return fmt.Sprintf("%d city names", len(cities))
	}
	if numbers >= 5 {
		return fmt.Sprintf("%d number words", numbers)
	}
	if digitWords >= 4 && float64(digitWords)/float64(len(u.words)) > 0.6 {
		return fmt.Sprintf("%d of %d words are digits", digitWords, len(u.words))
	}

	if secs := c.AudioDuration.Seconds(); secs > 0 && len(u.words) > 6 {
		if rate := float64(len(u.words)) / secs; rate > f.cfg.MaxWordsPerSecond {
			return fmt.Sprintf("%.1f words per second", rate)
		}
	}
	return ""
}
