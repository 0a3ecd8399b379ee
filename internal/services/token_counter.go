package services

import (
	"strings"
	"unicode"
)

// 各类字符的近似token系数
const (
	hanTokenRatio         = 1.6
	englishWordTokenRatio = 1.3
	digitTokenRatio       = 0.8
	punctTokenRatio       = 0.5
	otherTokenRatio       = 1.0
	tokenOverhead         = 2
)

// EstimateTokens 本地估算文本token数，用于上下文预算
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	var han, digits, punct, other, total int
	for _, r := range text {
		total++
		switch {
		case unicode.Is(unicode.Han, r):
			han++
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			// 英文按单词计
		case unicode.IsDigit(r):
			digits++
		case unicode.IsSpace(r):
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			punct++
		default:
			other++
		}
	}

	words := len(strings.FieldsFunc(text, func(r rune) bool {
		return r >= unicode.MaxASCII || !unicode.IsLetter(r)
	}))

	estimated := int(float64(han)*hanTokenRatio+
		float64(words)*englishWordTokenRatio+
		float64(digits)*digitTokenRatio+
		float64(punct)*punctTokenRatio+
		float64(other)*otherTokenRatio) + tokenOverhead

	if estimated > total*2 {
		estimated = total * 2
	}
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}
