package conversation

import (
	"slices"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Command is a global navigation command.
type Command string

const (
	CommandAdd                Command = "add"
	CommandCancel             Command = "cancel"
	CommandStatus             Command = "status"
	CommandMenu               Command = "menu"
	CommandHelp               Command = "help"
	CommandSubscriptionCancel Command = "subscription_cancel"
)

var commands = map[string]Command{
	"追加":          CommandAdd,
	"コンテンツ追加":     CommandAdd,
	"add":         CommandAdd,
	"解約":          CommandCancel,
	"コンテンツ解約":     CommandCancel,
	"cancel":      CommandCancel,
	"状態":          CommandStatus,
	"利用状況":        CommandStatus,
	"利用状況確認":      CommandStatus,
	"status":      CommandStatus,
	"メニュー":        CommandMenu,
	"menu":        CommandMenu,
	"ヘルプ":         CommandHelp,
	"help":        CommandHelp,
	"サブスクリプション解約": CommandSubscriptionCancel,
}

var (
	affirmative = []string{"はい", "yes", "y", "ok", "確定", "お願いします", "実行"}
	negative    = []string{"いいえ", "no", "n", "やめる", "キャンセル", "戻る"}
)

// Normalize applies NFKC, trims surrounding space and folds ASCII case.
// Full-width digits, letters and punctuation become their ASCII forms.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(text)))
}

// NormalizeEmail returns the canonical form of an e-mail address as stored
// in companies.email.
func NormalizeEmail(text string) string {
	return Normalize(text)
}

// LooksLikeEmail reports whether text should be treated as an account
// linking attempt.
func LooksLikeEmail(text string) bool {
	t := Normalize(text)
	at := strings.IndexByte(t, '@')
	return at > 0 && strings.Contains(t[at:], ".") && len(t) < 100 && !strings.ContainsAny(t, " \t\n")
}

// ParseCommand matches text against the global commands.
func ParseCommand(text string) (Command, bool) {
	c, ok := commands[trimPunct(Normalize(text))]
	return c, ok
}

// Answer is a yes/no reply to a confirmation.
type Answer int

const (
	NoAnswer Answer = iota
	Yes
	No
)

// ParseAnswer matches text against the affirmative and negative tokens.
func ParseAnswer(text string) Answer {
	t := trimPunct(Normalize(text))
	switch {
	case slices.Contains(affirmative, t):
		return Yes
	case slices.Contains(negative, t):
		return No
	default:
		return NoAnswer
	}
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || r == '~'
	})
}

var englishNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

var romanNumbers = map[string]int{
	"i": 1, "ii": 2, "iii": 3, "iv": 4, "v": 5,
	"vi": 6, "vii": 7, "viii": 8, "ix": 9, "x": 10,
}

var kanjiDigits = map[rune]int{
	'一': 1, '二': 2, '三': 3, '四': 4, '五': 5,
	'六': 6, '七': 7, '八': 8, '九': 9,
}

// Words and runes allowed around numbers in a selection, e.g. "1と3",
// "2番目", "one and three", "#2".
var (
	fillerWords = []string{"and", "no", "number"}
	fillerRunes = ",、。.・/&#+と番目個つ "
)

// ParseNumbers extracts the numbers of a selection such as "1,3", "１ ３",
// "一と三", "two and three" or "ii". The result is sorted and free of
// duplicates. ok is false when text holds anything besides numbers and
// separators, or no number at all.
func ParseNumbers(text string) (nums []int, ok bool) {
	runes := []rune(Normalize(text))
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case r >= '0' && r <= '9':
			j := i
			for j < len(runes) && runes[j] >= '0' && runes[j] <= '9' {
				j++
			}
			n, err := strconv.Atoi(string(runes[i:j]))
			if err != nil {
				return nil, false
			}
			nums = append(nums, n)
			i = j
		case isKanjiNumeral(r):
			j := i
			for j < len(runes) && isKanjiNumeral(runes[j]) {
				j++
			}
			n, valid := kanjiNumber(runes[i:j])
			if !valid {
				return nil, false
			}
			nums = append(nums, n)
			i = j
		case r >= 'a' && r <= 'z':
			j := i
			for j < len(runes) && runes[j] >= 'a' && runes[j] <= 'z' {
				j++
			}
			word := string(runes[i:j])
			if n, found := englishNumbers[word]; found {
				nums = append(nums, n)
			} else if n, found := romanNumbers[word]; found {
				nums = append(nums, n)
			} else if !slices.Contains(fillerWords, word) {
				return nil, false
			}
			i = j
		case strings.ContainsRune(fillerRunes, r) || unicode.IsSpace(r):
			i++
		default:
			return nil, false
		}
	}
	if len(nums) == 0 {
		return nil, false
	}
	slices.Sort(nums)
	return slices.Compact(nums), true
}

// InRange reports whether every number is within 1..n.
func InRange(nums []int, n int) bool {
	if len(nums) == 0 {
		return false
	}
	for _, v := range nums {
		if v < 1 || v > n {
			return false
		}
	}
	return true
}

func isKanjiNumeral(r rune) bool {
	_, ok := kanjiDigits[r]
	return ok || r == '十'
}

// kanjiNumber reads 1..99 written as 三, 十, 十二, 二十 or 二十三.
func kanjiNumber(rs []rune) (int, bool) {
	ten := slices.Index(rs, '十')
	if ten < 0 {
		if len(rs) != 1 {
			return 0, false
		}
		return kanjiDigits[rs[0]], true
	}
	if slices.Index(rs[ten+1:], '十') >= 0 || ten > 1 || len(rs)-ten > 2 {
		return 0, false
	}
	tens, units := 1, 0
	if ten == 1 {
		tens = kanjiDigits[rs[0]]
	}
	if ten+1 < len(rs) {
		units = kanjiDigits[rs[ten+1]]
	}
	return tens*10 + units, true
}
