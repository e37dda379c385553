package evaluation

import (
	"regexp"
	"strings"

	"github.com/hashicorp/go-version"
)

// SuiteVersion changes whenever cases are added or rescored. A major bump
// makes stored evaluations stale.
const SuiteVersion = "1.1.0"

var currentSuite = version.Must(version.NewVersion(SuiteVersion))

// Compatible reports whether an evaluation recorded under v is comparable
// with the current suite.
func Compatible(v string) bool {
	recorded, err := version.NewVersion(v)
	if err != nil {
		return false
	}
	return recorded.Segments()[0] == currentSuite.Segments()[0] && !recorded.GreaterThan(currentSuite)
}

// TestCase passes when the response is non-empty and Check accepts it.
type TestCase struct {
	Name      string
	Prompt    string
	System    string
	MaxTokens int
	Check     func(content string) bool
}

type Benchmark struct {
	Name  string
	Cases []TestCase
}

var digits = regexp.MustCompile(`\d+`)

func containsNumber(n string) func(string) bool {
	return func(s string) bool {
		for _, d := range digits.FindAllString(s, -1) {
			if d == n {
				return true
			}
		}
		return false
	}
}

func containsFold(sub string) func(string) bool {
	return func(s string) bool {
		return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
	}
}

func containsAll(subs ...string) func(string) bool {
	return func(s string) bool {
		for _, sub := range subs {
			if !strings.Contains(s, sub) {
				return false
			}
		}
		return true
	}
}

// DefaultSuite is the fixed benchmark suite at SuiteVersion.
func DefaultSuite() []Benchmark {
	return []Benchmark{
		{
			Name: "reasoning",
			Cases: []TestCase{
				{
					Name:      "arithmetic",
					Prompt:    "What is 17 + 25? Reply with the number only.",
					MaxTokens: 16,
					Check:     containsNumber("42"),
				},
				{
					Name:      "word_problem",
					Prompt:    "A shelf holds 3 rows of 8 books. 5 books are removed. How many books remain? Reply with the number only.",
					MaxTokens: 16,
					Check:     containsNumber("19"),
				},
			},
		},
		{
			Name: "instruction_following",
			Cases: []TestCase{
				{
					Name:      "exact_token",
					System:    "You follow formatting instructions exactly.",
					Prompt:    "Reply with the single word READY in capital letters and nothing else.",
					MaxTokens: 8,
					Check:     func(s string) bool { return strings.TrimSpace(strings.Trim(s, ".!\"'")) == "READY" },
				},
				{
					Name:      "list",
					Prompt:    "List the three primary colors of light, comma separated.",
					MaxTokens: 32,
					Check: func(s string) bool {
						return containsFold("red")(s) && containsFold("green")(s) && containsFold("blue")(s)
					},
				},
			},
		},
		{
			Name: "code",
			Cases: []TestCase{
				{
					Name:      "go_function",
					Prompt:    "Write a Go function named Add that returns the sum of two ints. Reply with code only.",
					MaxTokens: 128,
					Check:     containsAll("func Add", "return"),
				},
			},
		},
	}
}
