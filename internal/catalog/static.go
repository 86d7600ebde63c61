package catalog

import (
	"context"

	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

// StaticCatalog serves a fixed set of built-in questions. It backs the
// service when no question database is configured and doubles as the
// fallback source during database outages.
type StaticCatalog struct {
	questions []*types.Question
	byID      map[string]*types.Question
}

// NewStaticCatalog creates a catalog over the built-in question set.
func NewStaticCatalog() *StaticCatalog {
	return newStaticCatalog(builtinQuestions)
}

func newStaticCatalog(questions []*types.Question) *StaticCatalog {
	byID := make(map[string]*types.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return &StaticCatalog{questions: questions, byID: byID}
}

// ListQuestions returns all built-in questions.
func (c *StaticCatalog) ListQuestions(ctx context.Context) ([]*types.Question, error) {
	out := make([]*types.Question, len(c.questions))
	copy(out, c.questions)
	return out, nil
}

// GetQuestion returns one question by id.
func (c *StaticCatalog) GetQuestion(ctx context.Context, id string) (*types.Question, error) {
	q, ok := c.byID[id]
	if !ok {
		return nil, interfaces.ErrQuestionNotFound
	}
	return q, nil
}

// StarterCode returns the starter snippet for a question in one language.
// Unknown languages map to the empty string so a language switch on a
// question with partial starter coverage still resets the buffer.
func (c *StaticCatalog) StarterCode(ctx context.Context, id, language string) (string, error) {
	q, err := c.GetQuestion(ctx, id)
	if err != nil {
		return "", err
	}
	return q.StarterCode[language], nil
}

// Close is a no-op for the static catalog.
func (c *StaticCatalog) Close(ctx context.Context) error {
	return nil
}

var builtinQuestions = []*types.Question{
	{
		ID:          "two-sum",
		Title:       "Two Sum",
		Description: "Given an array of integers and a target, return the indices of the two numbers that add up to the target. Each input has exactly one solution, and you may not use the same element twice.",
		Examples: []types.QuestionExample{
			{Input: "nums = [2,7,11,15], target = 9", Output: "[0,1]", Explanation: "nums[0] + nums[1] == 9"},
			{Input: "nums = [3,2,4], target = 6", Output: "[1,2]"},
		},
		Constraints: []string{
			"2 <= nums.length <= 10^4",
			"-10^9 <= nums[i] <= 10^9",
			"Exactly one valid answer exists",
		},
		StarterCode: map[string]string{
			types.LanguageJavaScript: "function twoSum(nums, target) {\n  // Write your solution here\n}\n",
			types.LanguagePython:     "def two_sum(nums, target):\n    # Write your solution here\n    pass\n",
			types.LanguageJava:       "class Solution {\n    public int[] twoSum(int[] nums, int target) {\n        // Write your solution here\n        return new int[]{};\n    }\n}\n",
			types.LanguageCPP:        "#include <vector>\nusing namespace std;\n\nvector<int> twoSum(vector<int>& nums, int target) {\n    // Write your solution here\n    return {};\n}\n",
		},
	},
	{
		ID:          "reverse-string",
		Title:       "Reverse String",
		Description: "Write a function that reverses a string. The input is given as an array of characters, and you must modify the array in place with O(1) extra memory.",
		Examples: []types.QuestionExample{
			{Input: `s = ["h","e","l","l","o"]`, Output: `["o","l","l","e","h"]`},
			{Input: `s = ["H","a","n","n","a","h"]`, Output: `["h","a","n","n","a","H"]`},
		},
		Constraints: []string{
			"1 <= s.length <= 10^5",
			"s[i] is a printable ASCII character",
		},
		StarterCode: map[string]string{
			types.LanguageJavaScript: "function reverseString(s) {\n  // Write your solution here\n}\n",
			types.LanguagePython:     "def reverse_string(s):\n    # Write your solution here\n    pass\n",
			types.LanguageJava:       "class Solution {\n    public void reverseString(char[] s) {\n        // Write your solution here\n    }\n}\n",
			types.LanguageCPP:        "#include <vector>\nusing namespace std;\n\nvoid reverseString(vector<char>& s) {\n    // Write your solution here\n}\n",
		},
	},
	{
		ID:          "valid-parentheses",
		Title:       "Valid Parentheses",
		Description: "Given a string containing just the characters '(', ')', '{', '}', '[' and ']', determine if the input string is valid. Brackets must close in the correct order and every close must match an open of the same type.",
		Examples: []types.QuestionExample{
			{Input: `s = "()"`, Output: "true"},
			{Input: `s = "(]"`, Output: "false"},
			{Input: `s = "([{}])"`, Output: "true"},
		},
		Constraints: []string{
			"1 <= s.length <= 10^4",
			"s consists of parentheses only",
		},
		StarterCode: map[string]string{
			types.LanguageJavaScript: "function isValid(s) {\n  // Write your solution here\n}\n",
			types.LanguagePython:     "def is_valid(s):\n    # Write your solution here\n    pass\n",
			types.LanguageJava:       "class Solution {\n    public boolean isValid(String s) {\n        // Write your solution here\n        return false;\n    }\n}\n",
			types.LanguageCPP:        "#include <string>\nusing namespace std;\n\nbool isValid(string s) {\n    // Write your solution here\n    return false;\n}\n",
		},
	},
}
